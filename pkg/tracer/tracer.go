// Package tracer builds the opentracing tracer used by the server and the device client
// Package tracer 创建服务端与设备端客户端使用的 opentracing tracer
package tracer

import (
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// Config tracer 配置
type Config struct {
	ServiceName string
	// AgentHostPort Jaeger agent 地址，为空时返回 NoopTracer
	AgentHostPort string
	// SampleRate 概率采样率 0~1
	SampleRate float64
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns the tracer and the closer that flushes it; the tracer is also set as the global tracer
// New 返回 tracer 及用于刷新上报的 closer，同时设置为全局 tracer
func New(cfg Config) (opentracing.Tracer, io.Closer, error) {
	if cfg.AgentHostPort == "" {
		t := opentracing.NoopTracer{}
		opentracing.SetGlobalTracer(t)
		return t, nopCloser{}, nil
	}

	jc := jaegercfg.Configuration{
		ServiceName: cfg.ServiceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeProbabilistic,
			Param: cfg.SampleRate,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LocalAgentHostPort: cfg.AgentHostPort,
		},
	}
	t, closer, err := jc.NewTracer()
	if err != nil {
		return nil, nil, errors.Wrap(err, "create jaeger tracer")
	}
	opentracing.SetGlobalTracer(t)
	return t, closer, nil
}
