package sender

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"posnode/config"

	"github.com/quic-go/quic-go/http3"
)

// Transporter 抽象了 "发请求" 这件事，返回 (statusCode, responseBody, error)
type Transporter interface {
	Send(ctx context.Context, url string, data []byte, contentType string) (int, []byte, error)
}

// Http3Transport 生产环境用的实现
type Http3Transport struct {
	client *http.Client
	rt     *http3.Transport
}

func NewHttp3Transport(cfg *config.Config) *Http3Transport {
	client, rt := createHttp3Client(cfg)
	return &Http3Transport{client: client, rt: rt}
}

// Send 实际执行 HTTP/3 POST
func (t *Http3Transport) Send(ctx context.Context, url string, data []byte, contentType string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respData, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, respData, nil
}

// Close 关闭底层 QUIC 连接
func (t *Http3Transport) Close() error {
	return t.rt.Close()
}
