package workflow

import "time"

// Revision is one committed version of a request. The history of a request
// is its revisions ordered by version.
type Revision struct {
	RequestID string    `json:"request_id"`
	Version   int       `json:"version"`
	State     State     `json:"state"`
	Verb      Verb      `json:"verb"`
	Actor     string    `json:"actor"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func revisionOf(req Request, verb Verb, actor, comment string) Revision {
	return Revision{
		RequestID: req.ID,
		Version:   req.Version,
		State:     req.State,
		Verb:      verb,
		Actor:     actor,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}
}
