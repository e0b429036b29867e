// Package quicklistener 提供进程内按 key 划分的发布/订阅总线
//
// # 核心概念
//
//   - Bus: 共享上下文，持有事件通道、响应通道与活跃 key 集合
//   - Handle: 绑定到一组 key 的视图，用于监听、广播、等待与退役 key
//   - Event: 一次广播，类型为 Data、Error 或 Done
//   - Response: 监听者通过 respond 发回的值
//
// # 快速开始
//
//	bus, err := quicklistener.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bus.Close()
//
//	jobs := quicklistener.For[string](bus, "jobs")
//	jobs.Listen(func(job string, respond quicklistener.Respond) error {
//	    respond("accepted " + job)
//	    return nil
//	})
//
//	_ = jobs.BroadcastAndWait(ctx, "build")
//	resp, err := jobs.WaitForResponse(ctx)
//
// # 完成屏障
//
// BroadcastAndWait 在广播时刻已注册的所有接收者处理完毕后返回，
// 包括 WaitFor* 的一次性订阅。没有接收者时立即返回。
// 监听者回调的错误与 panic 不会传播给广播方，只交给该监听者的 onStreamError。
//
// # key 生命周期
//
// 构造 Handle 激活它的 key；Done 广播 Done 事件，等待处理完毕后退役 key
// 并取消绑定到它的监听者。空字符串是通配 key：通配 Handle 监听所有事件，
// 通配 Handle 的 Done 退役所有 key。
//
// # 调试
//
// EnableDebugMode 开启后，key 生命周期与广播会写到 DebugSink，
// 默认是 Bus 的 Logger，也可以用 config.DebugConfig.NDJSONPath 写到文件。
package quicklistener
