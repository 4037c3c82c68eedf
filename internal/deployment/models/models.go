package models

import (
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	id "deploygate/pkg/domain"
)

// Labels linking cluster objects to this service.
const (
	// OwnerLabel carries the owning user's name. It is the only link between
	// a cluster Deployment and its owner.
	OwnerLabel = "ownerName"
	AppLabel   = "app"
)

// Defaults applied when the cluster omits type metadata, which typed list
// responses usually do.
const (
	DefaultAPIVersion = "apps/v1"
	DefaultKind       = "Deployment"
)

// Record is the locally stored view of a Deployment owned by one user.
type Record struct {
	ID             id.RecordID
	OwnerName      string
	Namespace      string
	DeploymentName string
	AppName        string
	Image          string
	Replicas       int32
	APIVersion     string
	Kind           string
	CreatedAt      time.Time
}

// NaturalKey identifies a record within its owner's set.
func (r Record) NaturalKey() string {
	return r.Namespace + "/" + r.DeploymentName
}

// FromCluster translates a cluster Deployment into a record owned by owner.
// The image comes from the first pod template container and the creation
// time is truncated to whole seconds.
func FromCluster(owner string, d *appsv1.Deployment) Record {
	r := Record{
		OwnerName:      owner,
		Namespace:      d.Namespace,
		DeploymentName: d.Name,
		AppName:        appName(d),
		Replicas:       1,
		APIVersion:     d.APIVersion,
		Kind:           d.Kind,
		CreatedAt:      d.CreationTimestamp.Time.Truncate(time.Second).UTC(),
	}
	if d.CreationTimestamp.IsZero() {
		r.CreatedAt = time.Time{}
	}
	if r.APIVersion == "" {
		r.APIVersion = DefaultAPIVersion
	}
	if r.Kind == "" {
		r.Kind = DefaultKind
	}
	if d.Spec.Replicas != nil {
		r.Replicas = *d.Spec.Replicas
	}
	if containers := d.Spec.Template.Spec.Containers; len(containers) > 0 {
		r.Image = containers[0].Image
	}
	return r
}

func appName(d *appsv1.Deployment) string {
	if d.Spec.Selector != nil {
		if v := d.Spec.Selector.MatchLabels[AppLabel]; v != "" {
			return v
		}
	}
	if v := d.Spec.Template.Labels[AppLabel]; v != "" {
		return v
	}
	return d.Name
}

// ToCluster rebuilds the cluster shape of a record, carrying the owner label.
func ToCluster(r Record) *appsv1.Deployment {
	replicas := r.Replicas
	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: r.APIVersion, Kind: r.Kind},
		ObjectMeta: metav1.ObjectMeta{
			Name:              r.DeploymentName,
			Namespace:         r.Namespace,
			Labels:            map[string]string{OwnerLabel: r.OwnerName},
			CreationTimestamp: metav1.NewTime(r.CreatedAt),
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{AppLabel: r.AppName}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{AppLabel: r.AppName}},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: r.AppName, Image: r.Image}},
				},
			},
		},
	}
}

// CreateOptions are the modifiers forwarded to the cluster create call.
type CreateOptions struct {
	// Pretty is accepted for API compatibility only. The typed client has no
	// pretty parameter, so it never reaches the cluster.
	Pretty bool
	DryRun string
}

// IsDryRun reports whether the cluster is asked not to persist the object.
func (o CreateOptions) IsDryRun() bool { return o.DryRun != "" }
