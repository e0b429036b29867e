package quicklistener

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-quicklistener/config"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Params Fx 模块输入参数
type Params struct {
	fx.In

	Config     *config.Config        `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Bus *Bus
}

// Module 返回 Fx 模块
//
// 容器中的 *config.Config 与 prometheus.Registerer 会被自动使用，
// opts 在它们之后应用。Bus 在应用停止时关闭。
func Module(opts ...Option) fx.Option {
	return fx.Module("quicklistener",
		fx.Provide(func(p Params) (Result, error) {
			return ProvideBus(p, opts...)
		}),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideBus 提供 Bus 实例
func ProvideBus(p Params, opts ...Option) (Result, error) {
	all := make([]Option, 0, len(opts)+2)
	if p.Config != nil {
		all = append(all, WithConfig(p.Config))
	}
	if p.Registerer != nil {
		all = append(all, WithRegisterer(p.Registerer))
	}
	all = append(all, opts...)

	b, err := New(all...)
	if err != nil {
		return Result{}, err
	}
	return Result{Bus: b}, nil
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC  fx.Lifecycle
	Bus *Bus
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return input.Bus.Close()
		},
	})
}
