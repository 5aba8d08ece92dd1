package models

// VerificationRequest carries the verifier's expectations for one attempt.
// It is owned by the caller and never mutated by the pipeline.
type VerificationRequest struct {
	ID                   string                `json:"id,omitempty"`
	Comment              string                `json:"comment,omitempty"`
	Policies             []string              `json:"policies,omitempty"`
	RequestedCredentials []RequestedCredential `json:"requestedCredentials,omitempty"`
	Challenge            string                `json:"challenge,omitempty"`
	Domain               string                `json:"domain,omitempty"`
}

// RequestedCredential describes a credential the verifier asked for.
type RequestedCredential struct {
	Type    string   `json:"type"`
	Issuers []string `json:"issuers,omitempty"`
	Claims  []string `json:"claims,omitempty"`
}

// PolicyNames returns the requested policy names, tolerating a nil request.
func (r *VerificationRequest) PolicyNames() []string {
	if r == nil {
		return nil
	}
	return r.Policies
}

// ChallengeValue returns the request challenge, tolerating a nil request.
func (r *VerificationRequest) ChallengeValue() string {
	if r == nil {
		return ""
	}
	return r.Challenge
}

// DomainValue returns the request domain, tolerating a nil request.
func (r *VerificationRequest) DomainValue() string {
	if r == nil {
		return ""
	}
	return r.Domain
}
