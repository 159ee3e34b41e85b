package sender

import (
	"crypto/tls"
	"net/http"
	"posnode/config"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// 创建非单例的 HTTP/3 客户端
func createHttp3Client(cfg *config.Config) (*http.Client, *http3.Transport) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	tlsCfg := &tls.Config{
		// 节点证书自签名
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS13,
		MaxVersion:         tls.VersionTLS13,
		ClientSessionCache: tls.NewLRUClientSessionCache(128),
		NextProtos:         []string{http3.NextProtoH3},
	}

	tr := &http3.Transport{
		TLSClientConfig: tlsCfg,
		QUICConfig: &quic.Config{
			KeepAlivePeriod: cfg.Server.QUICKeepAlivePeriod,
			MaxIdleTimeout:  cfg.Server.QUICMaxIdleTimeout,
		},
	}

	return &http.Client{
		Transport: tr,
		Timeout:   cfg.Network.ConnectionTimeout,
	}, tr
}
