// Package cluster talks to the Kubernetes API on behalf of deployment owners.
package cluster

import (
	"context"
	"errors"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	k8svalidation "k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/kubernetes"

	"deploygate/internal/deployment/models"
	"deploygate/internal/platform/metrics"
	dErrors "deploygate/pkg/domain-errors"
	"deploygate/pkg/platform/sentinel"
)

// Gateway performs typed Deployment operations. It is safe for concurrent
// use because the underlying clientset is.
type Gateway struct {
	client  kubernetes.Interface
	metrics *metrics.Metrics
}

type Option func(*Gateway)

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func New(client kubernetes.Interface, opts ...Option) *Gateway {
	g := &Gateway{client: client}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OwnerSelector selects Deployments carrying owner's label. An owner that is
// not a valid label value fails with CodeBadRequest instead of being rendered
// into a selector with extra terms.
func OwnerSelector(owner string) (string, error) {
	sel, err := labels.ValidatedSelectorFromSet(labels.Set{models.OwnerLabel: owner})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, "Given owner name is not a valid label value")
	}
	return sel.String(), nil
}

func validOwner(owner string) error {
	if msgs := k8svalidation.IsValidLabelValue(owner); len(msgs) > 0 {
		return dErrors.New(dErrors.CodeBadRequest, "Given owner name is not a valid label value")
	}
	return nil
}

// List returns Deployments labelled for owner, in namespace or across all
// namespaces when namespace is empty.
func (g *Gateway) List(ctx context.Context, owner, namespace string) ([]appsv1.Deployment, error) {
	defer g.observe("list", time.Now())

	selector, err := OwnerSelector(owner)
	if err != nil {
		return nil, err
	}
	if namespace == "" {
		namespace = metav1.NamespaceAll
	}
	list, err := g.client.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return nil, translate(err)
	}
	return list.Items, nil
}

// Create stamps the owner label onto a copy of d, merging with any labels it
// already has, and submits it to namespace.
func (g *Gateway) Create(ctx context.Context, owner, namespace string, d *appsv1.Deployment, opts models.CreateOptions) (*appsv1.Deployment, error) {
	defer g.observe("create", time.Now())

	if err := validOwner(owner); err != nil {
		return nil, err
	}
	obj := d.DeepCopy()
	obj.Namespace = namespace
	if obj.Labels == nil {
		obj.Labels = make(map[string]string, 1)
	}
	obj.Labels[models.OwnerLabel] = owner

	createOpts := metav1.CreateOptions{}
	if opts.DryRun != "" {
		createOpts.DryRun = []string{opts.DryRun}
	}
	created, err := g.client.AppsV1().Deployments(namespace).Create(ctx, obj, createOpts)
	if err != nil {
		return nil, translate(err)
	}
	return created, nil
}

// Delete removes the named Deployment if it belongs to owner. A Deployment
// that is missing or owned by someone else yields sentinel.ErrNotFound.
func (g *Gateway) Delete(ctx context.Context, owner, namespace, name string) error {
	defer g.observe("delete", time.Now())

	deployments := g.client.AppsV1().Deployments(namespace)
	existing, err := deployments.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return sentinel.ErrNotFound
		}
		return translate(err)
	}
	if existing.Labels[models.OwnerLabel] != owner {
		return sentinel.ErrNotFound
	}

	propagation := metav1.DeletePropagationForeground
	err = deployments.Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
		Preconditions:     &metav1.Preconditions{UID: &existing.UID},
	})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return sentinel.ErrNotFound
		}
		return translate(err)
	}
	return nil
}

func (g *Gateway) observe(operation string, start time.Time) {
	if g.metrics != nil {
		g.metrics.ObserveClusterCall(operation, start)
	}
}

// translate keeps the API server's own message when it answered with a
// Status body; transport failures carry no message.
func translate(err error) error {
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		if msg := status.Status().Message; msg != "" {
			return dErrors.Wrap(err, dErrors.CodeClusterAPI, msg)
		}
	}
	return dErrors.Wrap(err, dErrors.CodeClusterAPI, "")
}
