// internal/domain/notification/shared_types.go
package notification

// Type identifies the kind of reminder a notification carries.
type Type string

const (
	TypeHefsekReminder  Type = "hefsek_reminder"
	TypeMikvahReminder  Type = "mikvah_reminder"
	TypeVesetChodesh    Type = "veset_chodesh"
	TypeVesetHaflagah   Type = "veset_haflagah"
	TypeVesetHaguf      Type = "veset_haguf"
	TypeOnahBeinonit    Type = "onah_beinonit"
	TypeOnahChasamSofer Type = "onah_chasam_sofer"
	TypeOhrZaruah       Type = "ohr_zaruah"
)

// IsVeset reports whether t is a predicted-onset reminder.
func (t Type) IsVeset() bool {
	switch t {
	case TypeVesetChodesh, TypeVesetHaflagah, TypeVesetHaguf, TypeOnahBeinonit, TypeOnahChasamSofer, TypeOhrZaruah:
		return true
	}
	return false
}
