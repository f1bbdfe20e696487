package filter

import "strings"

// Canonical qualification labels.
const (
	QualificationDiploma  = "Diploma"
	QualificationBachelor = "Bachelor Degree"
	QualificationMasters  = "Masters Degree"
	QualificationPhD      = "PhD"
)

var qualificationRanks = map[string]int{
	QualificationDiploma:  1,
	QualificationBachelor: 2,
	QualificationMasters:  3,
	QualificationPhD:      4,
}

// keys are lowercased, whitespace-collapsed
var qualificationSynonyms = map[string]string{
	"diploma":                 QualificationDiploma,
	"advanced diploma":        QualificationDiploma,
	"higher diploma":          QualificationDiploma,
	"higher national diploma": QualificationDiploma,
	"hnd":                     QualificationDiploma,
	"associate degree":        QualificationDiploma,
	"associate's degree":      QualificationDiploma,
	"associates degree":       QualificationDiploma,
	"bachelor":                QualificationBachelor,
	"bachelors":               QualificationBachelor,
	"bachelor's":              QualificationBachelor,
	"bachelor degree":         QualificationBachelor,
	"bachelors degree":        QualificationBachelor,
	"bachelor's degree":       QualificationBachelor,
	"undergraduate":           QualificationBachelor,
	"undergraduate degree":    QualificationBachelor,
	"b.sc":                    QualificationBachelor,
	"bsc":                     QualificationBachelor,
	"b.s":                     QualificationBachelor,
	"bs":                      QualificationBachelor,
	"b.a":                     QualificationBachelor,
	"ba":                      QualificationBachelor,
	"b.tech":                  QualificationBachelor,
	"btech":                   QualificationBachelor,
	"b.e":                     QualificationBachelor,
	"be":                      QualificationBachelor,
	"b.com":                   QualificationBachelor,
	"bcom":                    QualificationBachelor,
	"bba":                     QualificationBachelor,
	"llb":                     QualificationBachelor,
	"master":                  QualificationMasters,
	"masters":                 QualificationMasters,
	"master's":                QualificationMasters,
	"master degree":           QualificationMasters,
	"masters degree":          QualificationMasters,
	"master's degree":         QualificationMasters,
	"postgraduate":            QualificationMasters,
	"postgraduate degree":     QualificationMasters,
	"m.sc":                    QualificationMasters,
	"msc":                     QualificationMasters,
	"m.s":                     QualificationMasters,
	"ms":                      QualificationMasters,
	"m.a":                     QualificationMasters,
	"ma":                      QualificationMasters,
	"mba":                     QualificationMasters,
	"m.tech":                  QualificationMasters,
	"mtech":                   QualificationMasters,
	"m.e":                     QualificationMasters,
	"m.com":                   QualificationMasters,
	"mca":                     QualificationMasters,
	"mph":                     QualificationMasters,
	"llm":                     QualificationMasters,
	"phd":                     QualificationPhD,
	"ph.d":                    QualificationPhD,
	"ph. d":                   QualificationPhD,
	"doctorate":               QualificationPhD,
	"doctoral":                QualificationPhD,
	"doctoral degree":         QualificationPhD,
	"doctor of philosophy":    QualificationPhD,
	"dphil":                   QualificationPhD,
	"d.phil":                  QualificationPhD,
}

var qualificationPrefixes = []struct {
	prefix    string
	canonical string
}{
	{"doctor of ", QualificationPhD},
	{"phd in ", QualificationPhD},
	{"ph.d. in ", QualificationPhD},
	{"master of ", QualificationMasters},
	{"masters of ", QualificationMasters},
	{"master in ", QualificationMasters},
	{"masters in ", QualificationMasters},
	{"master's in ", QualificationMasters},
	{"bachelor of ", QualificationBachelor},
	{"bachelors of ", QualificationBachelor},
	{"bachelor in ", QualificationBachelor},
	{"bachelors in ", QualificationBachelor},
	{"bachelor's in ", QualificationBachelor},
	{"diploma in ", QualificationDiploma},
	{"diploma of ", QualificationDiploma},
}

func qualificationKey(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// NormalizeQualification maps a free-text qualification onto its canonical
// label. Unknown values are returned unchanged.
func NormalizeQualification(raw string) string {
	key := qualificationKey(raw)
	if key == "" {
		return raw
	}
	if canonical, ok := qualificationSynonyms[key]; ok {
		return canonical
	}
	if canonical, ok := qualificationSynonyms[strings.TrimRight(key, ".")]; ok {
		return canonical
	}
	for _, p := range qualificationPrefixes {
		if strings.HasPrefix(key, p.prefix) {
			return p.canonical
		}
	}
	return raw
}

// QualificationRank orders qualifications: Diploma=1, Bachelor=2, Masters=3,
// PhD=4. Anything unrecognized ranks 0.
func QualificationRank(raw string) int {
	return qualificationRanks[NormalizeQualification(raw)]
}

// CanonicalQualifications lists the canonical labels in rank order.
func CanonicalQualifications() []string {
	return []string{QualificationDiploma, QualificationBachelor, QualificationMasters, QualificationPhD}
}
