package places

// Place is the subset of a places API result the pipeline consumes.
type Place struct {
	ID                  string         `json:"id"`
	DisplayName         *LocalizedText `json:"displayName,omitempty"`
	FormattedAddress    string         `json:"formattedAddress,omitempty"`
	Location            *LatLng        `json:"location,omitempty"`
	NationalPhoneNumber string         `json:"nationalPhoneNumber,omitempty"`
	Rating              *float64       `json:"rating,omitempty"`
	UserRatingCount     *int           `json:"userRatingCount,omitempty"`
	Types               []string       `json:"types,omitempty"`
	RegularOpeningHours *OpeningHours  `json:"regularOpeningHours,omitempty"`
}

// Name returns the display name text, or "" when absent.
func (p Place) Name() string {
	if p.DisplayName == nil {
		return ""
	}
	return p.DisplayName.Text
}

// LocalizedText is a display string with its language.
type LocalizedText struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// OpeningHours is the weekly schedule of a place.
type OpeningHours struct {
	OpenNow             *bool    `json:"openNow,omitempty"`
	Periods             []Period `json:"periods,omitempty"`
	WeekdayDescriptions []string `json:"weekdayDescriptions,omitempty"`
}

// Period is one open interval. Close is absent for places open around the clock.
type Period struct {
	Open  *PeriodPoint `json:"open,omitempty"`
	Close *PeriodPoint `json:"close,omitempty"`
}

// PeriodPoint is a day/hour/minute triple with day 0 = Sunday. Every field is
// optional in the payload.
type PeriodPoint struct {
	Day    *int `json:"day,omitempty"`
	Hour   *int `json:"hour,omitempty"`
	Minute *int `json:"minute,omitempty"`
}

type searchNearbyRequest struct {
	IncludedTypes       []string            `json:"includedTypes,omitempty"`
	MaxResultCount      int                 `json:"maxResultCount"`
	LanguageCode        string              `json:"languageCode,omitempty"`
	LocationRestriction locationRestriction `json:"locationRestriction"`
}

type locationRestriction struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type searchNearbyResponse struct {
	Places []Place `json:"places"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
