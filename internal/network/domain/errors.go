package domain

import "errors"

var (
	ErrInvalidNodeID       = errors.New("invalid_node_id")
	ErrInvalidUserID       = errors.New("invalid_user_id")
	ErrNodeNotFound        = errors.New("node_not_found")
	ErrNodeAlreadyExists   = errors.New("node_already_exists")
	ErrSponsorNotFound     = errors.New("sponsor_not_found")
	ErrNoAvailablePosition = errors.New("no_available_position")
	ErrPlacementConflict   = errors.New("placement_conflict")
	// ErrCorruptNetwork reports a cycle or a node reached twice while walking
	// the placement tree or sponsor chain.
	ErrCorruptNetwork = errors.New("corrupt_network")
)
