package models

import (
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	id "deploygate/pkg/domain"
	dErrors "deploygate/pkg/domain-errors"
	"deploygate/pkg/platform/validation"
)

// DryRunAll is the only dry-run mode the cluster API accepts.
const DryRunAll = metav1.DryRunAll

const (
	minPort = 1
	maxPort = 65535
)

var pullPolicies = map[string]corev1.PullPolicy{
	"IF_NOT_PRESENT": corev1.PullIfNotPresent,
	"ALWAYS":         corev1.PullAlways,
	"NEVER":          corev1.PullNever,
	"IFNOTPRESENT":   corev1.PullIfNotPresent,
}

// CreateDeploymentRequest is the body of POST /api/v1/user/{userName}/deployment.
type CreateDeploymentRequest struct {
	APIVersion      string `json:"apiVersion"`
	Kind            string `json:"kind"`
	MetaDataName    string `json:"metaDataName"`
	Replicas        *int32 `json:"replicas"`
	AppName         string `json:"appName"`
	Image           string `json:"image"`
	ImagePullPolicy string `json:"imagePullPolicy"`
	ContainerPorts  []int  `json:"containerPorts"`
	Namespace       string `json:"namespace"`
	Pretty          *bool  `json:"pretty,omitempty"`
	DryRun          string `json:"dryRun,omitempty"`

	pullPolicy corev1.PullPolicy
}

func (r *CreateDeploymentRequest) Normalize() {
	r.APIVersion = strings.TrimSpace(r.APIVersion)
	r.Kind = strings.TrimSpace(r.Kind)
	r.MetaDataName = strings.TrimSpace(r.MetaDataName)
	r.AppName = strings.TrimSpace(r.AppName)
	r.Image = strings.TrimSpace(r.Image)
	r.Namespace = strings.TrimSpace(r.Namespace)
	r.DryRun = strings.TrimSpace(r.DryRun)
	r.ImagePullPolicy = strings.TrimSpace(r.ImagePullPolicy)

	r.pullPolicy = corev1.PullIfNotPresent
	if r.ImagePullPolicy != "" {
		r.pullPolicy = pullPolicies[strings.ToUpper(r.ImagePullPolicy)]
	}
}

// Validate reports the first offending field in declaration order.
func (r *CreateDeploymentRequest) Validate() error {
	if err := validation.First(
		validation.Required("apiVersion", r.APIVersion),
		validation.Required("kind", r.Kind),
		validation.Required("metaDataName", r.MetaDataName),
	); err != nil {
		return err
	}
	if r.Replicas == nil {
		return validation.Missing("replicas")
	}
	if err := validation.Min("replicas", int(*r.Replicas), 1); err != nil {
		return err
	}
	if err := validation.First(
		validation.Required("appName", r.AppName),
		validation.Required("image", r.Image),
	); err != nil {
		return err
	}
	if r.ImagePullPolicy != "" && r.pullPolicy == "" {
		return dErrors.New(dErrors.CodeValidation, "Given parameter imagePullPolicy must be one of IF_NOT_PRESENT, ALWAYS, NEVER")
	}
	if len(r.ContainerPorts) == 0 {
		return validation.Missing("containerPorts")
	}
	for _, port := range r.ContainerPorts {
		if err := validation.Range("containerPorts", port, minPort, maxPort); err != nil {
			return err
		}
	}
	if err := validation.Required("namespace", r.Namespace); err != nil {
		return err
	}
	if r.DryRun != "" && r.DryRun != DryRunAll {
		return dErrors.New(dErrors.CodeValidation, "Given parameter dryRun must be empty or All")
	}
	return nil
}

// ToCluster builds the Deployment to submit: selector and pod template
// labelled app=<appName>, one container named after the app.
func (r *CreateDeploymentRequest) ToCluster() *appsv1.Deployment {
	replicas := int32(1)
	if r.Replicas != nil {
		replicas = *r.Replicas
	}
	policy := r.pullPolicy
	if policy == "" {
		policy = corev1.PullIfNotPresent
	}
	ports := make([]corev1.ContainerPort, 0, len(r.ContainerPorts))
	for _, p := range r.ContainerPorts {
		ports = append(ports, corev1.ContainerPort{ContainerPort: int32(p)})
	}

	return &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: r.APIVersion, Kind: r.Kind},
		ObjectMeta: metav1.ObjectMeta{Name: r.MetaDataName, Namespace: r.Namespace},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{AppLabel: r.AppName}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{AppLabel: r.AppName}},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:            r.AppName,
						Image:           r.Image,
						ImagePullPolicy: policy,
						Ports:           ports,
					}},
				},
			},
		},
	}
}

func (r *CreateDeploymentRequest) Options() CreateOptions {
	opts := CreateOptions{DryRun: r.DryRun}
	if r.Pretty != nil {
		opts.Pretty = *r.Pretty
	}
	return opts
}

// DeploymentResponse is the public shape of a record.
type DeploymentResponse struct {
	APIVersion        string `json:"apiVersion"`
	Kind              string `json:"kind"`
	CreationTimestamp string `json:"creationTimestamp"`
	Name              string `json:"name"`
	Namespace         string `json:"namespace"`
	Image             string `json:"image"`
	Replicas          int32  `json:"replicas"`
}

func NewDeploymentResponse(r Record) DeploymentResponse {
	return DeploymentResponse{
		APIVersion:        r.APIVersion,
		Kind:              r.Kind,
		CreationTimestamp: id.FormatTimestamp(r.CreatedAt),
		Name:              r.DeploymentName,
		Namespace:         r.Namespace,
		Image:             r.Image,
		Replicas:          r.Replicas,
	}
}

// NewDeploymentResponses never returns nil so empty lists encode as [].
func NewDeploymentResponses(records []Record) []DeploymentResponse {
	out := make([]DeploymentResponse, 0, len(records))
	for _, r := range records {
		out = append(out, NewDeploymentResponse(r))
	}
	return out
}
