// Package kube builds the Kubernetes clientset used by the cluster gateway.
package kube

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"deploygate/internal/platform/config"
)

// RESTConfig resolves connection settings from a kubeconfig file, or from the
// pod's service account when no file is configured.
func RESTConfig(cfg config.KubeConfig) (*rest.Config, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if cfg.Kubeconfig == "" {
		restCfg, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("load in-cluster config: %w", err)
		}
	} else {
		rules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: cfg.Kubeconfig}
		overrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.Context}
		restCfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig %s: %w", cfg.Kubeconfig, err)
		}
	}
	if cfg.Timeout > 0 {
		restCfg.Timeout = cfg.Timeout
	}
	return restCfg, nil
}

// NewClientset returns a typed clientset for cfg.
func NewClientset(cfg config.KubeConfig) (kubernetes.Interface, error) {
	restCfg, err := RESTConfig(cfg)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	return clientset, nil
}
