package dataset

import (
	"github.com/moortools/moorage/moapi"
)

// The dataset lifecycle is a strict one-way machine following the remote
// record's existence:
//
//	NotDeployed -> Deployed -> Obsolete
//
// Transitions are driven externally, at the moment the owning entity sees
// the corresponding remote confirmation.  Calling a transition out of
// order is a usage error, not a transient failure.

type State uint8

const (
	// NotDeployed is the initial state: the remote record does not exist
	// yet.  Reads return only locally-assigned values; getters and
	// setters may not be invoked.
	NotDeployed State = iota
	// Deployed means the remote record exists; unset fields are fetched
	// on demand and commits are allowed.
	Deployed
	// Obsolete is terminal: the remote record was destroyed and every
	// further read or write fails.
	Obsolete
)

func (s State) String() string {
	switch s {
	case NotDeployed:
		return "not-deployed"
	case Deployed:
		return "deployed"
	case Obsolete:
		return "obsolete"
	default:
		return "invalid"
	}
}

// State returns the current lifecycle state.
func (ds *Dataset) State() State {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.state
}

// MarkDeployed records that the remote record now exists.  Call exactly
// once, after the creation operation is confirmed.
//
// Errors:
//
//    - moorage-error-invalid -- when the dataset is not in the
//      not-deployed state
func (ds *Dataset) MarkDeployed() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.state != NotDeployed {
		return moapi.ErrorInvalid("MarkDeployed is only valid on a not-deployed dataset",
			[2]string{"state", ds.state.String()})
	}
	ds.state = Deployed
	return nil
}

// MarkObsolete records that the remote record was destroyed.  Call exactly
// once, after the destruction is confirmed.  Terminal.
//
// Errors:
//
//    - moorage-error-invalid -- when the dataset is not in the deployed
//      state
func (ds *Dataset) MarkObsolete() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.state != Deployed {
		return moapi.ErrorInvalid("MarkObsolete is only valid on a deployed dataset",
			[2]string{"state", ds.state.String()})
	}
	ds.state = Obsolete
	return nil
}
