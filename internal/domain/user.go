package domain

// UserAccount mirrors a row of user_info
type UserAccount struct {
	ID             string `db:"id"`
	Paid           bool   `db:"paid"`
	InTraining     bool   `db:"in_training"`
	Trained        bool   `db:"trained"`
	ModelVersionID string `db:"replicate_version_id"`
	UsageCounter   int    `db:"counter"`
	InstanceClass  string `db:"instance_class"`
}

// ModelReady reports whether the user's fine-tuned model can serve predictions
func (u UserAccount) ModelReady() bool {
	return !u.InTraining && u.Trained && u.ModelVersionID != ""
}

// GenerationRequest is a validated "start generation" call
type GenerationRequest struct {
	Theme    string
	Prompt   string
	Seed     *int
	Quantity int
}
