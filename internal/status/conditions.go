// Package status provides utilities for managing BuildRun status fields,
// including conditions and phase transitions.
package status

import (
	"time"

	"github.com/jbweber/crucible/api/v1alpha1"
)

// SetCondition adds or updates a condition in the run status.
// If a condition with the same type already exists, it updates it.
// The LastTransitionTime is only updated if the status changes.
func SetCondition(run *v1alpha1.BuildRun, condType string, status v1alpha1.ConditionStatus, reason, message string) {
	now := v1alpha1.Time{Time: time.Now()}

	newCondition := v1alpha1.Condition{
		Type:               condType,
		Status:             status,
		ObservedGeneration: run.Generation,
		LastTransitionTime: now,
		Reason:             reason,
		Message:            message,
	}

	// Find existing condition
	for i := range run.Status.Conditions {
		if run.Status.Conditions[i].Type == condType {
			// Update existing condition
			existing := &run.Status.Conditions[i]

			// Only update LastTransitionTime if status changed
			if existing.Status != status {
				existing.LastTransitionTime = now
			}

			existing.Status = status
			existing.Reason = reason
			existing.Message = message
			existing.ObservedGeneration = run.Generation
			return
		}
	}

	// Condition doesn't exist, append it
	run.Status.Conditions = append(run.Status.Conditions, newCondition)
}

// GetCondition returns a condition by type, or nil if not found.
func GetCondition(run *v1alpha1.BuildRun, condType string) *v1alpha1.Condition {
	for i := range run.Status.Conditions {
		if run.Status.Conditions[i].Type == condType {
			return &run.Status.Conditions[i]
		}
	}
	return nil
}

// IsConditionTrue returns true if the condition exists and has status True.
func IsConditionTrue(run *v1alpha1.BuildRun, condType string) bool {
	cond := GetCondition(run, condType)
	return cond != nil && cond.Status == v1alpha1.ConditionTrue
}

// IsConditionFalse returns true if the condition exists and has status False.
func IsConditionFalse(run *v1alpha1.BuildRun, condType string) bool {
	cond := GetCondition(run, condType)
	return cond != nil && cond.Status == v1alpha1.ConditionFalse
}

// RemoveCondition removes a condition by type.
func RemoveCondition(run *v1alpha1.BuildRun, condType string) {
	filtered := make([]v1alpha1.Condition, 0, len(run.Status.Conditions))
	for i := range run.Status.Conditions {
		if run.Status.Conditions[i].Type != condType {
			filtered = append(filtered, run.Status.Conditions[i])
		}
	}
	run.Status.Conditions = filtered
}

// MarkEnvironmentReady marks the environment condition as True.
// Called once the guest has booted and SSH answers.
func MarkEnvironmentReady(run *v1alpha1.BuildRun, address string) {
	SetCondition(run, v1alpha1.ConditionEnvironmentReady, v1alpha1.ConditionTrue, "SSHReachable", "guest answered on "+address)
	run.Status.Address = address
}

// MarkEnvironmentFailed marks the environment condition as False and fails the run.
func MarkEnvironmentFailed(run *v1alpha1.BuildRun, err error) {
	SetCondition(run, v1alpha1.ConditionEnvironmentReady, v1alpha1.ConditionFalse, "EnvironmentUnavailable", err.Error())
	run.SetPhase(v1alpha1.RunPhaseFailed)
}

// MarkProjectMounted marks the project mount condition as True.
func MarkProjectMounted(run *v1alpha1.BuildRun) {
	SetCondition(run, v1alpha1.ConditionProjectMounted, v1alpha1.ConditionTrue, "ShareMounted", "project checkout visible at "+run.GetGuestPath())
}

// MarkProjectMountFailed marks the project mount condition as False and fails the run.
func MarkProjectMountFailed(run *v1alpha1.BuildRun, err error) {
	SetCondition(run, v1alpha1.ConditionProjectMounted, v1alpha1.ConditionFalse, "MountFailed", err.Error())
	run.SetPhase(v1alpha1.RunPhaseFailed)
}

// MarkToolchainInstalled marks the toolchain condition as True.
func MarkToolchainInstalled(run *v1alpha1.BuildRun) {
	SetCondition(run, v1alpha1.ConditionToolchainInstalled, v1alpha1.ConditionTrue, "InstallerSucceeded", "toolchain installer completed")
}

// MarkToolchainFailed marks the toolchain condition as False.
// The phase transition is handled by the pipeline failure path.
func MarkToolchainFailed(run *v1alpha1.BuildRun, err error) {
	SetCondition(run, v1alpha1.ConditionToolchainInstalled, v1alpha1.ConditionFalse, "InstallerFailed", err.Error())
}
