package quicklistener

import (
	"errors"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-quicklistener/config"
	"github.com/dep2p/go-quicklistener/internal/debuglog"
)

// Option Bus 配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	cfg      *config.Config
	clock    clock.Clock
	reg      prometheus.Registerer
	sink     debuglog.Sink
	classify Classifier
	log      *slog.Logger
}

func defaultOptions() options {
	return options{
		cfg:      config.NewConfig(),
		clock:    clock.New(),
		classify: DefaultClassifier,
	}
}

// WithConfig 使用给定配置，配置在 New 中校验
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config must not be nil")
		}
		o.cfg = config.CloneConfig(cfg)
		return nil
	}
}

// WithClock 替换时钟，测试中传入 clock.NewMock()
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		if clk == nil {
			return errors.New("clock must not be nil")
		}
		o.clock = clk
		return nil
	}
}

// WithRegisterer 将指标注册到 reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.reg = reg
		return nil
	}
}

// WithDebugSink 调试模式下的输出目标
//
// 未设置时使用 Debug.NDJSONPath 指定的文件，再退回到 Bus 的 Logger。
func WithDebugSink(sink DebugSink) Option {
	return func(o *options) error {
		o.sink = sink
		return nil
	}
}

// WithClassifier 替换未包装广播值的分类器
func WithClassifier(c Classifier) Option {
	return func(o *options) error {
		if c == nil {
			return errors.New("classifier must not be nil")
		}
		o.classify = c
		return nil
	}
}

// WithLogger 替换 Bus 的 Logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) error {
		o.log = l
		return nil
	}
}
