package reconciler

import (
	"fmt"
	"strconv"
	"strings"

	"chamber/internal/domain/attendance"
	"chamber/internal/domain/member"
	"chamber/internal/domain/practicesong"
	"chamber/internal/domain/sheetmusic"
)

type decision int

const (
	decisionKeep decision = iota
	decisionReplace
	decisionDefer
)

// reconcile is the conflict policy applied to every pull: last-writer-wins,
// where the remote snapshot is the later writer for every record without
// queued pushes. Records with queued pushes are overlaid onto the snapshot
// before this runs. It defers when the value changed during the fetch or a
// queued entry names no record.
func reconcile[T any](local, snapshot T, equal func(a, b T) bool, unkeyedPending, changedSinceFetch bool) decision {
	if unkeyedPending || changedSinceFetch {
		return decisionDefer
	}
	if equal(local, snapshot) {
		return decisionKeep
	}
	return decisionReplace
}

// pendingKeys maps a resource name to the keys of its queued entries.
type pendingKeys map[string][]string

// total returns the number of keys and whether any of them is empty.
func (p pendingKeys) total() (int, bool) {
	n, unkeyed := 0, false
	for _, keys := range p {
		n += len(keys)
		for _, k := range keys {
			if k == "" {
				unkeyed = true
			}
		}
	}
	return n, unkeyed
}

func attendanceKey(session, memberNo int) string {
	return fmt.Sprintf("%d:%d", session, memberNo)
}

func memberKey(no int) string {
	return strconv.Itoa(no)
}

func assignmentKey(session int, songID string) string {
	return fmt.Sprintf("%d:%s", session, songID)
}

// splitSessionKey parses "<session>:<rest>".
func splitSessionKey(key string) (int, string, bool) {
	head, rest, ok := strings.Cut(key, ":")
	if !ok {
		return 0, "", false
	}
	session, err := strconv.Atoi(head)
	return session, rest, err == nil
}

// overlayAttendance keeps the local cell of every queued attendance write
// and the whole local column of every member with queued roster changes.
func overlayAttendance(local, snapshot attendance.Sheet, pending pendingKeys) attendance.Sheet {
	keep := func(session, no int) {
		if rec, ok := local.Get(session, no); ok {
			snapshot.Set(session, no, rec)
			return
		}
		if row, ok := snapshot[session]; ok {
			delete(row, no)
			if len(row) == 0 {
				delete(snapshot, session)
			}
		}
	}

	for _, key := range pending[ResourceAttendance] {
		session, rest, ok := splitSessionKey(key)
		no, err := strconv.Atoi(rest)
		if ok && err == nil {
			keep(session, no)
		}
	}

	if len(pending[ResourceMembers]) == 0 {
		return snapshot
	}
	sessions := make(map[int]bool, len(local)+len(snapshot))
	for session := range local {
		sessions[session] = true
	}
	for session := range snapshot {
		sessions[session] = true
	}
	for _, key := range pending[ResourceMembers] {
		no, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		for session := range sessions {
			keep(session, no)
		}
	}
	return snapshot
}

func overlayRoster(local, snapshot member.Roster, pending pendingKeys) member.Roster {
	for _, key := range pending[ResourceMembers] {
		no, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		if m, ok := local.Find(no); ok {
			snapshot = snapshot.Upsert(m)
		} else {
			snapshot = snapshot.Remove(no)
		}
	}
	return snapshot
}

func overlayCatalog(local, snapshot sheetmusic.Catalog, pending pendingKeys) sheetmusic.Catalog {
	for _, id := range pending[ResourceSheetMusic] {
		if sm, ok := local.Find(id); ok {
			snapshot = snapshot.Upsert(sm)
		} else {
			snapshot = snapshot.Remove(id)
		}
	}
	return snapshot
}

func overlaySongs(local, snapshot practicesong.Songs, pending pendingKeys) practicesong.Songs {
	for _, id := range pending[ResourcePracticeSongs] {
		if song, ok := local.Find(id); ok {
			snapshot = snapshot.Upsert(song)
		} else {
			snapshot = snapshot.Remove(id)
		}
	}
	return snapshot
}

// overlayAssignments keeps the local state of every queued link change and
// every link of a song with queued changes.
func overlayAssignments(local, snapshot practicesong.Assignments, pending pendingKeys) practicesong.Assignments {
	keep := func(session int, songID string) {
		if local.Has(session, songID) {
			snapshot.Add(session, songID)
		} else {
			snapshot.Remove(session, songID)
		}
	}

	for _, key := range pending[ResourceSessionSongs] {
		if session, songID, ok := splitSessionKey(key); ok {
			keep(session, songID)
		}
	}

	if len(pending[ResourcePracticeSongs]) == 0 {
		return snapshot
	}
	sessions := make(map[int]bool, len(local)+len(snapshot))
	for session := range local {
		sessions[session] = true
	}
	for session := range snapshot {
		sessions[session] = true
	}
	for _, songID := range pending[ResourcePracticeSongs] {
		for session := range sessions {
			keep(session, songID)
		}
	}
	return snapshot
}
