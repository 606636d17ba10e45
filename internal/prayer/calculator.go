// Package prayer computes the daily prayer instants and derived worship
// windows from coordinates, a date and a calculation convention. It is a
// pure leaf package with no I/O.
package prayer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/models"
)

// Method is a calculation convention: twilight angles for fajr/isha, or a
// fixed post-maghrib interval for isha where a convention uses one.
type Method struct {
	Name        string
	FajrAngle   float64
	IshaAngle   float64
	IshaMinutes int // used instead of IshaAngle when > 0
}

var methods = map[string]Method{
	"MWL":     {Name: "MWL", FajrAngle: 18, IshaAngle: 17},
	"ISNA":    {Name: "ISNA", FajrAngle: 15, IshaAngle: 15},
	"Egypt":   {Name: "Egypt", FajrAngle: 19.5, IshaAngle: 17.5},
	"Makkah":  {Name: "Makkah", FajrAngle: 18.5, IshaMinutes: 90},
	"Karachi": {Name: "Karachi", FajrAngle: 18, IshaAngle: 18},
}

// School selects the Asr shadow factor.
const (
	SchoolShafi  = "shafi"  // shadow factor 1
	SchoolHanafi = "hanafi" // shadow factor 2
)

const (
	preDawnMinutes    = 15 // window opens this long before fajr
	forenoonLeadIn    = 15 // minutes after sunrise
	forenoonLeadOut   = 10 // minutes before dhuhr
	horizonDepression = 0.833
)

// regionMethods maps timezone prefixes to regional defaults; first match
// wins, the fallback is MWL.
var regionMethods = []struct {
	prefix string
	method string
}{
	{"Asia/Riyadh", "Makkah"},
	{"Africa/Cairo", "Egypt"},
	{"Asia/Karachi", "Karachi"},
	{"Asia/Kolkata", "Karachi"},
	{"Asia/Dhaka", "Karachi"},
	{"America/", "ISNA"},
	{"Europe/", "MWL"},
	{"Africa/", "Egypt"},
	{"Asia/", "Makkah"},
}

var hanafiRegions = []string{"Asia/Karachi", "Asia/Kolkata", "Asia/Dhaka", "Asia/Istanbul", "Europe/Istanbul"}

// ResolveMethod maps "auto" to a regional default derived from the timezone
// string; explicit names pass through when known.
func ResolveMethod(name, tz string) Method {
	if name != "" && name != "auto" {
		if m, ok := methods[name]; ok {
			return m
		}
	}
	for _, r := range regionMethods {
		if strings.HasPrefix(tz, r.prefix) {
			return methods[r.method]
		}
	}
	return methods["MWL"]
}

// ResolveSchool maps "auto" to a regional default derived from the timezone.
func ResolveSchool(name, tz string) string {
	if name == SchoolShafi || name == SchoolHanafi {
		return name
	}
	for _, prefix := range hanafiRegions {
		if strings.HasPrefix(tz, prefix) {
			return SchoolHanafi
		}
	}
	return SchoolShafi
}

// TimesForDate computes the instants of the local calendar day containing
// date, interpreted in tz. The last-third-of-night window needs the next
// day's fajr, so the core pass runs twice.
func TimesForDate(loc models.Location, date time.Time, tz *time.Location, methodName, schoolName string) (models.PrayerTimesForDay, error) {
	if !finite(loc.Lat) || !finite(loc.Lon) {
		return models.PrayerTimesForDay{}, &models.ValidationError{Field: "location", Reason: "coordinates must be finite"}
	}
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
		return models.PrayerTimesForDay{}, &models.ValidationError{Field: "location", Reason: "coordinates out of range"}
	}

	method := ResolveMethod(methodName, tz.String())
	school := ResolveSchool(schoolName, tz.String())

	local := date.In(tz)
	year, month, day := local.Date()

	t, err := computeDay(loc, year, month, day, tz, method, school)
	if err != nil {
		return models.PrayerTimesForDay{}, err
	}

	nextLocal := time.Date(year, month, day, 12, 0, 0, 0, tz).AddDate(0, 0, 1)
	ny, nm, nd := nextLocal.Date()
	next, err := computeDay(loc, ny, nm, nd, tz, method, school)
	if err != nil {
		return models.PrayerTimesForDay{}, err
	}

	night := next.Fajr.Sub(t.Maghrib)
	t.Windows = models.WorshipWindows{
		PreDawn: models.WorshipWindow{
			Start: t.Fajr.Add(-preDawnMinutes * time.Minute),
			End:   t.Fajr,
		},
		Forenoon: models.WorshipWindow{
			Start: t.Sunrise.Add(forenoonLeadIn * time.Minute),
			End:   t.Dhuhr.Add(-forenoonLeadOut * time.Minute),
		},
		LastThirdOfNight: models.WorshipWindow{
			Start: t.Maghrib.Add(night * 2 / 3),
			End:   next.Fajr,
		},
	}
	return t, nil
}

func computeDay(loc models.Location, year int, month time.Month, day int, tz *time.Location, method Method, school string) (models.PrayerTimesForDay, error) {
	jd := julianDay(year, int(month), day)
	decl, eqt := sunPosition(jd + 0.5 - loc.Lon/360)

	// All intermediate times are fractional hours UTC.
	noon := fixHour(12 - eqt - loc.Lon/15)

	haSun, err := hourAngle(horizonDepression, loc.Lat, decl)
	if err != nil {
		return models.PrayerTimesForDay{}, err
	}
	haFajr, err := hourAngle(method.FajrAngle, loc.Lat, decl)
	if err != nil {
		return models.PrayerTimesForDay{}, err
	}

	sunrise := noon - haSun
	maghrib := noon + haSun
	fajr := noon - haFajr

	var isha float64
	if method.IshaMinutes > 0 {
		isha = maghrib + float64(method.IshaMinutes)/60
	} else {
		haIsha, err := hourAngle(method.IshaAngle, loc.Lat, decl)
		if err != nil {
			return models.PrayerTimesForDay{}, err
		}
		isha = noon + haIsha
	}

	shadow := 1.0
	if school == SchoolHanafi {
		shadow = 2.0
	}
	asrHA, err := asrHourAngle(shadow, loc.Lat, decl)
	if err != nil {
		return models.PrayerTimesForDay{}, err
	}

	base := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	at := func(hours float64) time.Time {
		return base.Add(time.Duration(hours * float64(time.Hour))).In(tz)
	}

	return models.PrayerTimesForDay{
		Date:    fmt.Sprintf("%04d-%02d-%02d", year, month, day),
		TZ:      tz.String(),
		Fajr:    at(fajr),
		Sunrise: at(sunrise),
		Dhuhr:   at(noon + 2.0/60), // conventional couple of minutes past zenith
		Asr:     at(noon + asrHA),
		Maghrib: at(maghrib),
		Isha:    at(isha),
	}, nil
}

// --- solar position ---

func julianDay(year, month, day int) float64 {
	if month <= 2 {
		year--
		month += 12
	}
	a := math.Floor(float64(year) / 100)
	b := 2 - a + math.Floor(a/4)
	return math.Floor(365.25*float64(year+4716)) +
		math.Floor(30.6001*float64(month+1)) +
		float64(day) + b - 1524.5
}

// sunPosition returns the declination (degrees) and equation of time
// (hours) for a julian day.
func sunPosition(jd float64) (decl, eqt float64) {
	d := jd - 2451545.0
	g := fixAngle(357.529 + 0.98560028*d)
	q := fixAngle(280.459 + 0.98564736*d)
	l := fixAngle(q + 1.915*dsin(g) + 0.020*dsin(2*g))
	e := 23.439 - 0.00000036*d

	decl = darcsin(dsin(e) * dsin(l))
	ra := datan2(dcos(e)*dsin(l), dcos(l)) / 15
	eqt = q/15 - fixHour(ra)
	return decl, eqt
}

// hourAngle returns the half-arc (hours) between solar noon and the instant
// the sun sits `angle` degrees below the horizon.
func hourAngle(angle, lat, decl float64) (float64, error) {
	v := (-dsin(angle) - dsin(decl)*dsin(lat)) / (dcos(decl) * dcos(lat))
	if v < -1 || v > 1 {
		return 0, fmt.Errorf("sun never reaches %.1f° below horizon at latitude %.2f", angle, lat)
	}
	return darccos(v) / 15, nil
}

// asrHourAngle returns the hours after noon when an object's shadow equals
// `shadow` times its height plus the noon shadow.
func asrHourAngle(shadow, lat, decl float64) (float64, error) {
	altitude := -darctan(1 / (shadow + dtan(math.Abs(lat-decl))))
	return hourAngle(altitude, lat, decl)
}

// degree-based trig helpers

func dsin(d float64) float64    { return math.Sin(d * math.Pi / 180) }
func dcos(d float64) float64    { return math.Cos(d * math.Pi / 180) }
func dtan(d float64) float64    { return math.Tan(d * math.Pi / 180) }
func darcsin(x float64) float64 { return math.Asin(x) * 180 / math.Pi }
func darccos(x float64) float64 { return math.Acos(x) * 180 / math.Pi }
func darctan(x float64) float64 { return math.Atan(x) * 180 / math.Pi }
func datan2(y, x float64) float64 {
	return math.Atan2(y, x) * 180 / math.Pi
}

func fixAngle(a float64) float64 { return fix(a, 360) }
func fixHour(h float64) float64  { return fix(h, 24) }

func fix(a, mod float64) float64 {
	a = math.Mod(a, mod)
	if a < 0 {
		a += mod
	}
	return a
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
