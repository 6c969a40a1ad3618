package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsornet/internal/network/domain"
	"gorm.io/gorm"
)

type frontierNode struct {
	id    snowflake.ID
	level int
}

// FindPosition returns the shallowest open slot under the sponsor, scanning
// each tree level left to right.
func (s *Service) FindPosition(ctx context.Context, tx *gorm.DB, sponsorID snowflake.ID) (domain.Placement, error) {
	sponsor, err := s.repo.FindByID(ctx, tx, sponsorID)
	if err != nil {
		return domain.Placement{}, err
	}
	if sponsor == nil {
		return domain.Placement{}, domain.ErrSponsorNotFound
	}
	placement, err := s.findPositionFrom(ctx, tx, *sponsor)
	if err != nil {
		return domain.Placement{}, err
	}
	placement.Reason = domain.ReasonBreadthFirst
	return placement, nil
}

func (s *Service) findPositionFrom(ctx context.Context, tx *gorm.DB, start domain.Node) (domain.Placement, error) {
	positions := s.mode.Positions()
	visited := map[snowflake.ID]struct{}{start.ID: {}}
	frontier := []frontierNode{{id: start.ID, level: start.Level}}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= s.maxDepth {
			return domain.Placement{}, domain.ErrNoAvailablePosition
		}

		ids := make([]snowflake.ID, 0, len(frontier))
		for _, n := range frontier {
			ids = append(ids, n.id)
		}
		children, err := s.repo.ListChildren(ctx, tx, ids)
		if err != nil {
			return domain.Placement{}, err
		}
		occupied := indexChildren(children)

		for _, n := range frontier {
			slots := occupied[n.id]
			for _, pos := range positions {
				if _, taken := slots[pos]; !taken {
					parentID := n.id
					return domain.Placement{
						ParentID: &parentID,
						Position: pos,
						Level:    n.level + 1,
					}, nil
				}
			}
		}

		// Every slot on this level is taken; descend in slot order.
		next := make([]frontierNode, 0, len(children))
		for _, n := range frontier {
			slots := occupied[n.id]
			for _, pos := range positions {
				childID := slots[pos]
				if _, seen := visited[childID]; seen {
					return domain.Placement{}, domain.ErrCorruptNetwork
				}
				visited[childID] = struct{}{}
				next = append(next, frontierNode{id: childID, level: n.level + 1})
			}
		}
		frontier = next
	}
	return domain.Placement{}, domain.ErrNoAvailablePosition
}

// OptimizePlacement fills an open direct slot under the sponsor first.
// With all direct slots taken it descends into the leg with the lowest
// weighted volume; equal volumes fall back to breadth-first search from the
// sponsor.
func (s *Service) OptimizePlacement(ctx context.Context, tx *gorm.DB, sponsorID snowflake.ID) (domain.Placement, error) {
	sponsor, err := s.repo.FindByID(ctx, tx, sponsorID)
	if err != nil {
		return domain.Placement{}, err
	}
	if sponsor == nil {
		return domain.Placement{}, domain.ErrSponsorNotFound
	}

	children, err := s.repo.ListChildren(ctx, tx, []snowflake.ID{sponsor.ID})
	if err != nil {
		return domain.Placement{}, err
	}
	slots := indexChildren(children)[sponsor.ID]
	for _, pos := range s.mode.Positions() {
		if _, taken := slots[pos]; !taken {
			parentID := sponsor.ID
			return domain.Placement{
				ParentID: &parentID,
				Position: pos,
				Level:    sponsor.Level + 1,
				Reason:   domain.ReasonOpenLegSlot,
			}, nil
		}
	}

	legs, err := s.legVolumes(ctx, tx, sponsor.ID, slots)
	if err != nil {
		return domain.Placement{}, err
	}

	weakest, balanced := pickWeakestLeg(legs)
	if balanced {
		placement, err := s.findPositionFrom(ctx, tx, *sponsor)
		if err != nil {
			return domain.Placement{}, err
		}
		placement.Reason = domain.ReasonBalancedLegs
		return placement, nil
	}

	legRoot, err := s.repo.FindByID(ctx, tx, legs[weakest].RootID)
	if err != nil {
		return domain.Placement{}, err
	}
	if legRoot == nil {
		return domain.Placement{}, domain.ErrCorruptNetwork
	}
	placement, err := s.findPositionFrom(ctx, tx, *legRoot)
	if err != nil {
		return domain.Placement{}, err
	}
	placement.Reason = domain.ReasonWeakerLeg
	return placement, nil
}

// LegVolumes reports the weighted volume of each occupied direct slot under
// the sponsor.
func (s *Service) LegVolumes(ctx context.Context, tx *gorm.DB, sponsorID snowflake.ID) ([]domain.LegVolume, error) {
	children, err := s.repo.ListChildren(ctx, tx, []snowflake.ID{sponsorID})
	if err != nil {
		return nil, err
	}
	return s.legVolumes(ctx, tx, sponsorID, indexChildren(children)[sponsorID])
}

func (s *Service) legVolumes(ctx context.Context, tx *gorm.DB, sponsorID snowflake.ID, slots map[domain.Position]snowflake.ID) ([]domain.LegVolume, error) {
	since := s.clock.Now().AddDate(0, 0, -s.rewards.Get().LegVolumeWindowDays)

	legs := make([]domain.LegVolume, 0, len(slots))
	for _, pos := range s.mode.Positions() {
		rootID, ok := slots[pos]
		if !ok {
			continue
		}
		ids, err := s.collectSubtree(ctx, tx, sponsorID, rootID)
		if err != nil {
			return nil, err
		}
		commissions, err := s.repo.SumCompletedCommissions(ctx, tx, ids, since)
		if err != nil {
			return nil, err
		}
		packages, err := s.repo.SumActivePackageValue(ctx, tx, ids)
		if err != nil {
			return nil, err
		}
		legs = append(legs, domain.LegVolume{
			RootID:   rootID,
			Position: pos,
			Volume:   commissions.Add(packages),
			Nodes:    len(ids),
		})
	}
	return legs, nil
}

// collectSubtree walks the placement tree below rootID level by level.
// Reaching the excluded ancestor or any node twice means the tree has a
// cycle.
func (s *Service) collectSubtree(ctx context.Context, tx *gorm.DB, ancestorID, rootID snowflake.ID) ([]snowflake.ID, error) {
	visited := map[snowflake.ID]struct{}{ancestorID: {}, rootID: {}}
	out := []snowflake.ID{rootID}
	frontier := []snowflake.ID{rootID}

	for len(frontier) > 0 {
		children, err := s.repo.ListChildren(ctx, tx, frontier)
		if err != nil {
			return nil, err
		}
		next := make([]snowflake.ID, 0, len(children))
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				return nil, domain.ErrCorruptNetwork
			}
			visited[child.ID] = struct{}{}
			out = append(out, child.ID)
			next = append(next, child.ID)
		}
		frontier = next
	}
	return out, nil
}

// pickWeakestLeg returns the first leg with the minimum volume and whether
// all legs carry the same volume.
func pickWeakestLeg(legs []domain.LegVolume) (int, bool) {
	if len(legs) == 0 {
		return 0, true
	}
	weakest := 0
	balanced := true
	for i := 1; i < len(legs); i++ {
		if !legs[i].Volume.Equal(legs[0].Volume) {
			balanced = false
		}
		if legs[i].Volume.LessThan(legs[weakest].Volume) {
			weakest = i
		}
	}
	return weakest, balanced
}

func indexChildren(children []domain.ChildSlot) map[snowflake.ID]map[domain.Position]snowflake.ID {
	out := make(map[snowflake.ID]map[domain.Position]snowflake.ID, len(children))
	for _, child := range children {
		slots, ok := out[child.ParentID]
		if !ok {
			slots = map[domain.Position]snowflake.ID{}
			out[child.ParentID] = slots
		}
		slots[child.Position] = child.ID
	}
	return out
}
