// Package services defines the collaborator interfaces the job executor
// drives and the error taxonomy used to classify their failures at phase
// boundaries.
package services
