package models

import "time"

// Profile pictures assigned when a user does not upload one.
const (
	DefaultUserPicture  = "default-user-pic.png"
	DefaultAdminPicture = "default-admin-pic.png"
)

// User is an account able to sign in.
type User struct {
	ID             string
	Name           string
	PasswordHash   string
	DOB            *time.Time
	ProfilePicture string
	Role           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasCustomPicture reports whether the user's picture was uploaded rather
// than one of the shared defaults.
func (u User) HasCustomPicture() bool {
	return u.ProfilePicture != "" &&
		u.ProfilePicture != DefaultUserPicture &&
		u.ProfilePicture != DefaultAdminPicture
}

// Title is a catalog record. It describes a movie, a series header or an
// episode of a series:
//
//	movie:   IsSeries=false, VideoFileName and EpisodeLogoFileName set
//	header:  IsSeries=true, EpisodeNumber nil, SeriesLogoFileName set, no video
//	episode: IsSeries=true, EpisodeNumber set, video and episode logo set,
//	         genre, age rating and series logo copied from the header
type Title struct {
	ID                  string
	Title               string
	Genre               string
	AgeRating           string
	IsSeries            bool
	SeriesTitle         string
	EpisodeNumber       *int
	VideoFileName       string
	SeriesLogoFileName  string
	EpisodeLogoFileName string
	CreatedAt           time.Time
}

// IsSeriesHeader reports whether t is the record describing a whole series.
func (t Title) IsSeriesHeader() bool {
	return t.IsSeries && t.EpisodeNumber == nil
}
