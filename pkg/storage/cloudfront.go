package storage

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/cloudfront/sign"
)

// CloudFront signs canned-policy URLs for objects served through a distribution.
type CloudFront struct {
	domain string
	signer *sign.URLSigner
}

// NewCloudFront parses the PEM private key of a CloudFront key pair.
func NewCloudFront(domain, keyPairID, privateKeyPEM string) (*CloudFront, error) {
	// Keys stored in env vars often carry escaped newlines.
	pem := strings.ReplaceAll(privateKeyPEM, `\n`, "\n")
	key, err := sign.LoadPEMPrivKey(strings.NewReader(pem))
	if err != nil {
		return nil, fmt.Errorf("load cloudfront private key: %w", err)
	}
	domain = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(domain, "https://"), "http://"), "/")
	return &CloudFront{domain: domain, signer: sign.NewURLSigner(keyPairID, key)}, nil
}

// SignedURL returns a signed https URL for key valid until expires.
// With attachment set the URL asks the origin to send Content-Disposition: attachment.
func (c *CloudFront) SignedURL(key string, attachment bool, expires time.Time) (string, error) {
	u := url.URL{Scheme: "https", Host: c.domain, Path: "/" + strings.TrimPrefix(key, "/")}
	if attachment {
		u.RawQuery = url.Values{"response-content-disposition": {"attachment"}}.Encode()
	}
	signed, err := c.signer.Sign(u.String(), expires)
	if err != nil {
		return "", fmt.Errorf("sign cloudfront url: %w", err)
	}
	return signed, nil
}
