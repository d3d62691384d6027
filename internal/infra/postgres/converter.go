package postgres

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/mo"
)

// OptionToPgtext converts mo.Option[string] to pgtype.Text
func OptionToPgtext(o mo.Option[string]) pgtype.Text {
	s, ok := o.Get()
	if !ok {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// PgtextToOption converts pgtype.Text to mo.Option[string]
func PgtextToOption(t pgtype.Text) mo.Option[string] {
	if !t.Valid {
		return mo.None[string]()
	}
	return mo.Some(t.String)
}

// OptionToPgdate converts mo.Option[time.Time] to pgtype.Date
func OptionToPgdate(o mo.Option[time.Time]) pgtype.Date {
	t, ok := o.Get()
	if !ok {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), Valid: true}
}

// PgdateToOption converts pgtype.Date to mo.Option[time.Time]
func PgdateToOption(d pgtype.Date) mo.Option[time.Time] {
	if !d.Valid {
		return mo.None[time.Time]()
	}
	return mo.Some(d.Time)
}
