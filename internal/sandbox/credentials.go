package sandbox

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// NetworkCredentialSource resolves the credentials a granted network
// Capability is allowed to present, so a module never holds ambient
// access to a secret store itself.
type NetworkCredentialSource interface {
	CredentialFor(ctx context.Context, target string) (NetworkCredential, error)
}

// NetworkCredential is an opaque bearer credential resolved for one
// network target.
type NetworkCredential struct {
	Target string
	Token  string
}

// K8sSecretCredentialSource resolves network credentials from
// Kubernetes Secrets labeled for sandbox use, following the teacher's
// in-cluster client-go wrapper but scoped to a single namespace and a
// target-to-secret-name convention instead of generic publishing
// targets.
type K8sSecretCredentialSource struct {
	clientset kubernetes.Interface
	namespace string
	timeout   time.Duration
}

// NewK8sSecretCredentialSource builds a credential source using
// in-cluster configuration.
func NewK8sSecretCredentialSource(namespace string, timeout time.Duration) (*K8sSecretCredentialSource, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("loading in-cluster config: %w", err)
	}
	cfg.Timeout = timeout

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes clientset: %w", err)
	}

	return &K8sSecretCredentialSource{clientset: clientset, namespace: namespace, timeout: timeout}, nil
}

// secretNameFor maps a network capability target (e.g. "api.example.com:443")
// to the Secret name that carries its credential: "sandbox-cred-<target>"
// with characters outside [a-z0-9-] replaced by "-".
func secretNameFor(target string) string {
	out := make([]byte, 0, len(target)+12)
	out = append(out, "sandbox-cred-"...)
	for _, r := range target {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			out = append(out, byte(r))
		case r >= 'A' && r <= 'Z':
			out = append(out, byte(r-'A'+'a'))
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}

// CredentialFor fetches and decodes the token field of the Secret
// conventionally named for target.
func (s *K8sSecretCredentialSource) CredentialFor(ctx context.Context, target string) (NetworkCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var secret *corev1.Secret
	secret, err := s.clientset.CoreV1().Secrets(s.namespace).Get(ctx, secretNameFor(target), metav1.GetOptions{})
	if err != nil {
		return NetworkCredential{}, fmt.Errorf("fetching credential secret for %s: %w", target, err)
	}

	token, ok := secret.Data["token"]
	if !ok {
		return NetworkCredential{}, fmt.Errorf("secret for %s has no token field", target)
	}

	return NetworkCredential{Target: target, Token: string(token)}, nil
}
