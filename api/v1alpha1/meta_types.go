// Package v1alpha1 contains API types for crucible.cofront.xyz/v1alpha1
//
// These types are hand-rolled to match Kubernetes API conventions without
// requiring k8s.io/apimachinery dependencies. Field names and JSON tags match
// the apimachinery equivalents, so a later migration to a real controller is
// a type swap rather than a refactor.
package v1alpha1

import (
	"encoding/json"
	"maps"
	"time"

	"gopkg.in/yaml.v3"
)

// TypeMeta identifies an object's kind and API version.
type TypeMeta struct {
	// +optional
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	// APIVersion is the versioned schema, e.g. "crucible.cofront.xyz/v1alpha1".
	// +optional
	APIVersion string `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
}

// ObjectMeta is the metadata every persisted resource carries. A cut-down
// version of apimachinery's ObjectMeta; only fields crucible populates.
type ObjectMeta struct {
	// Name identifies the resource. Required when creating resources.
	// +optional
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// +optional
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// +optional
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`

	// CreationTimestamp is set by the system on create. Read-only.
	// +optional
	CreationTimestamp Time `json:"creationTimestamp,omitempty" yaml:"creationTimestamp,omitempty"`

	// UID is set by the system on create. Read-only.
	// +optional
	UID string `json:"uid,omitempty" yaml:"uid,omitempty"`

	// Generation is a sequence number for the desired state. Read-only.
	// +optional
	Generation int64 `json:"generation,omitempty" yaml:"generation,omitempty"`
}

// Time wraps time.Time so zero values serialize as null and everything
// else as RFC3339, in both JSON and YAML. Matches apimachinery's Time.
type Time struct {
	time.Time `json:"-" yaml:"-"`
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

func (t *Time) UnmarshalJSON(b []byte) error {
	if string(b) == "null" || string(b) == `""` {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Time) MarshalYAML() (interface{}, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.Time.Format(time.RFC3339), nil
}

func (t *Time) UnmarshalYAML(node *yaml.Node) error {
	if node.Value == "" || node.Value == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, node.Value)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ConditionStatus is the status of a condition: True, False, or Unknown.
type ConditionStatus string

const (
	ConditionTrue    ConditionStatus = "True"
	ConditionFalse   ConditionStatus = "False"
	ConditionUnknown ConditionStatus = "Unknown"
)

// Condition records one observed aspect of a resource's state, in the
// shape of apimachinery's Condition.
type Condition struct {
	// Type of condition in CamelCase.
	Type string `json:"type" yaml:"type"`

	Status ConditionStatus `json:"status" yaml:"status"`

	// ObservedGeneration is the .metadata.generation the condition was
	// set from.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty" yaml:"observedGeneration,omitempty"`

	// LastTransitionTime is when Status last changed.
	// +optional
	LastTransitionTime Time `json:"lastTransitionTime,omitempty" yaml:"lastTransitionTime,omitempty"`

	// Reason is a programmatic identifier for the last transition.
	// +optional
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// +optional
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

func (in *TypeMeta) DeepCopy() *TypeMeta {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

func (in *ObjectMeta) DeepCopy() *ObjectMeta {
	if in == nil {
		return nil
	}
	out := *in
	out.Labels = maps.Clone(in.Labels)
	out.Annotations = maps.Clone(in.Annotations)
	return &out
}

func (in *Time) DeepCopy() *Time {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

func (in *Condition) DeepCopy() *Condition {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}
