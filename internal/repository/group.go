package repository

import "github.com/AlfazAli25/NexusChat/internal/models"

// NextGroupState computes the membership after leaving leaves. The last
// participant leaving deletes the group; the last admin leaving promotes
// the first remaining participant so the admin set is never empty while
// participants remain.
func NextGroupState(participants, admins []string, leaving string) (newParticipants, newAdmins []string, deleted bool) {
	for _, p := range participants {
		if p != leaving {
			newParticipants = append(newParticipants, p)
		}
	}
	if len(newParticipants) == 0 {
		return nil, nil, true
	}
	for _, a := range admins {
		if a != leaving {
			newAdmins = append(newAdmins, a)
		}
	}
	if len(newAdmins) == 0 {
		newAdmins = []string{newParticipants[0]}
	}
	return newParticipants, newAdmins, false
}

// SeenByAllOthers reports whether every participant except the sender has a
// read receipt on m.
func SeenByAllOthers(m *models.Message, participants []string) bool {
	read := make(map[string]bool, len(m.ReadBy))
	for _, r := range m.ReadBy {
		read[r.UserID] = true
	}
	for _, p := range participants {
		if p == m.SenderID {
			continue
		}
		if !read[p] {
			return false
		}
	}
	return true
}
