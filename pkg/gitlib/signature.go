package gitlib

import (
	"time"

	git2go "github.com/libgit2/git2go/v34"
)

// Signature identifies a commit author or committer.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// toGit converts the signature to its libgit2 form.
func (s Signature) toGit() *git2go.Signature {
	return &git2go.Signature{
		Name:  s.Name,
		Email: s.Email,
		When:  s.When,
	}
}

// signatureFrom converts a libgit2 signature.
func signatureFrom(sig *git2go.Signature) Signature {
	if sig == nil {
		return Signature{}
	}

	return Signature{
		Name:  sig.Name,
		Email: sig.Email,
		When:  sig.When,
	}
}
