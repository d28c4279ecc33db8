package registration

import "enrollsync/pkg/domain"

// ChangePair joins a source record with its existing mirror for the update
// batch.
type ChangePair struct {
	Source *Record
	Mirror *Record
}

// Classification is the detector's verdict over one organization's records.
type Classification struct {
	New       []*Record
	Changed   []ChangePair
	Unchanged []*Record
	Orphaned  []*Record
}

// Classify compares the full current set of source records against the
// previously-mirrored target records, indexed by foreign id.
//
// A source record with no mirror is New; with a mirror whose whitelisted
// fields differ it is Changed; otherwise Unchanged. A mirror whose foreign
// id no longer appears in the source set is Orphaned. Target records with
// no foreign id at all were created directly in the target and are never
// eligible for orphan deletion.
func Classify(source, target []*Record) Classification {
	mirrorsByForeignID := make(map[domain.RegistrationID]*Record, len(target))
	for _, t := range target {
		if t.Mirrored() {
			mirrorsByForeignID[t.ForeignID] = t
		}
	}

	var out Classification
	sourceIDs := make(map[domain.RegistrationID]struct{}, len(source))
	for _, s := range source {
		sourceIDs[s.ID] = struct{}{}

		mirror, ok := mirrorsByForeignID[s.ID]
		switch {
		case !ok:
			out.New = append(out.New, s)
		case !mirroredFieldsEqual(s, mirror):
			out.Changed = append(out.Changed, ChangePair{Source: s, Mirror: mirror})
		default:
			out.Unchanged = append(out.Unchanged, s)
		}
	}

	for _, t := range target {
		if !t.Mirrored() {
			continue
		}
		if _, ok := sourceIDs[t.ForeignID]; !ok {
			out.Orphaned = append(out.Orphaned, t)
		}
	}
	return out
}
