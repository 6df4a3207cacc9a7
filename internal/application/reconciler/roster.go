package reconciler

import (
	"context"
	"errors"
	"log/slog"

	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
	domain "chamber/internal/domain/outbox"
)

// Members returns a copy of the roster, ordered by member number.
func (s *Service) Members() member.Roster {
	return s.members.Get()
}

// AddMember appends a new member.
// PRE: m is valid
// POST: returns member.ErrDuplicateNo when the number is taken
func (s *Service) AddMember(ctx context.Context, m member.Member) (WriteResult, error) {
	return s.saveMember(ctx, m, true)
}

// UpdateMember changes the name or instrument of an existing member.
// POST: returns member.ErrNotFound when the number is unknown
func (s *Service) UpdateMember(ctx context.Context, m member.Member) (WriteResult, error) {
	return s.saveMember(ctx, m, false)
}

func (s *Service) saveMember(ctx context.Context, m member.Member, create bool) (WriteResult, error) {
	if err := m.Validate(); err != nil {
		return WriteResult{}, err
	}
	_, result, err := write(ctx, s, s.members, func(r member.Roster) (member.Roster, []action, error) {
		_, exists := r.Find(m.No)
		if create && exists {
			return nil, nil, member.ErrDuplicateNo
		}
		if !create && !exists {
			return nil, nil, member.ErrNotFound
		}
		return r.Upsert(m), []action{{Resource: ResourceMembers, Key: memberKey(m.No), Type: domain.ActionMemberUpsert, Payload: m}}, nil
	})
	if err != nil {
		return WriteResult{}, err
	}

	event := "member_updated"
	if create {
		event = "member_added"
	}
	slog.Info("member_event", "event", event, "member_no", m.No, "remote", string(result.Remote))
	return result, nil
}

// DeleteMember removes a member and every attendance entry keyed by its
// number. Both values change together or not at all.
// POST: no session of the sheet mentions memberNo
func (s *Service) DeleteMember(ctx context.Context, no int) (WriteResult, error) {
	acts := []action{{
		Resource: ResourceMembers,
		Key:      memberKey(no),
		Type:     domain.ActionMemberDelete,
		Payload:  memberKeyPayload{No: no},
	}}

	// The remote delete cascades attendance rows, so only the member delete is queued.
	removed := 0
	_, err := s.members.mutate(ctx, s.cache, func(r member.Roster) (member.Roster, error) {
		if _, ok := r.Find(no); !ok {
			return nil, member.ErrNotFound
		}
		return r.Remove(no), nil
	}, func() error {
		_, err := s.attendance.mutate(ctx, s.cache, func(sheet attendance.Sheet) (attendance.Sheet, error) {
			removed = sheet.DeleteMember(no)
			return sheet, nil
		}, func() error {
			return s.enqueue(ctx, acts)
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrLocalPersistence) {
			slog.Error("member_delete_failed", "member_no", no, "error", err)
		}
		return WriteResult{}, err
	}
	s.notifyUpdated(ResourceMembers)
	s.notifyUpdated(ResourceAttendance)
	result := s.pushNow(ctx, ResourceMembers, acts)

	slog.Info("member_event", "event", "member_deleted", "member_no", no, "attendance_removed", removed, "remote", string(result.Remote))
	return result, nil
}
