package models

// Observation is the single fact the detection boundary hands to the
// ledger: a plate seen at capture time, with an opaque evidence reference.
type Observation struct {
	Plate    string `json:"plate"`
	Evidence string `json:"evidence,omitempty"`
}
