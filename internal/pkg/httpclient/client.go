// internal/pkg/httpclient/client.go
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// ServiceResolver 将逻辑服务名解析为一个可用实例的地址。
// 由 nacos.Client 实现。
type ServiceResolver interface {
	DiscoverServiceInstance(serviceName string) (string, int, error)
}

// Client 是一个可追踪的、基于服务发现的 HTTP 客户端。
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
	resolver   ServiceResolver
}

// NewClient 创建一个新的客户端实例。
// 不设置全局 Timeout，让每次请求完全受控于传入的 context。
func NewClient(tracer trace.Tracer, resolver ServiceResolver) *Client {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	return &Client{
		Tracer:     tracer,
		HTTPClient: httpClient,
		resolver:   resolver,
	}
}

// CallService 通过服务发现调用下游服务的指定路径，响应体由调用方解析并负责关闭。
func (c *Client) CallService(ctx context.Context, serviceName, path string, params url.Values) (*http.Response, error) {
	ip, port, err := c.resolver.DiscoverServiceInstance(serviceName)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("http://%s:%d%s", ip, port, path)
	return c.Post(ctx, serviceName, endpoint, params)
}

// Post 向指定 URL 发起 POST 请求，并注入追踪上下文。
func (c *Client) Post(ctx context.Context, spanName, serviceURL string, params url.Values) (*http.Response, error) {
	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return nil, err
	}

	ctx, span := c.Tracer.Start(ctx, "call-"+spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	downstreamURL := *parsedURL
	q := downstreamURL.Query()
	for key, values := range params {
		for _, value := range values {
			q.Add(key, value)
		}
	}
	downstreamURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, downstreamURL.String(), nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("http.url", downstreamURL.String()),
		attribute.String("http.method", http.MethodPost),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		err := fmt.Errorf("service %s returned status %s", serviceURL, resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}
