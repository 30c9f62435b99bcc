package ttls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"nfpanel/nfp/common"
)

// LoadTLSConfig 支持：
//   - cert/key：既可为文件路径，也可为直接 PEM 内容（包含 "-----BEGIN" 即视为 PEM 内容）；
//   - sniGuard：逗号分隔的域名/通配符（如 "*.example.com,api.example.com"）。
//     为空=禁用；启用则要求客户端 SNI 命中白名单，且证书覆盖该 SNI。
func LoadTLSConfig(cert, key, sniGuard string) (*tls.Config, error) {
	cert = strings.TrimSpace(cert)
	key = strings.TrimSpace(key)

	if cert == "" || key == "" {
		return nil, errors.New("empty cert/key")
	}

	certPEM, err := common.ReadPEMorFile(cert)
	if err != nil {
		return nil, fmt.Errorf("read cert: %w", err)
	}
	keyPEM, err := common.ReadPEMorFile(key)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}

	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse keypair: %w", err)
	}

	// 解析 leaf，便于后续 VerifyHostname
	if pair.Leaf == nil && len(pair.Certificate) > 0 {
		if leaf, e := x509.ParseCertificate(pair.Certificate[0]); e == nil {
			pair.Leaf = leaf
		}
	}

	guardList := common.ParseGuardList(sniGuard)

	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{pair},

		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(guardList) == 0 {
				return nil
			}
			sni := strings.ToLower(strings.TrimSpace(cs.ServerName))
			if sni == "" {
				return errors.New("sni required")
			}
			if !common.MatchAnyHostPattern(sni, guardList) {
				return fmt.Errorf("sni not allowed: %s", sni)
			}
			if pair.Leaf != nil {
				if err := pair.Leaf.VerifyHostname(sni); err != nil {
					return fmt.Errorf("sni not covered by certificate: %w", err)
				}
			}
			return nil
		},
	}

	return cfg, nil
}
