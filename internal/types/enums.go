package types

// City values
const (
	CityChandigarh = "Chandigarh"
	CityMohali     = "Mohali"
	CityZirakpur   = "Zirakpur"
	CityPanchkula  = "Panchkula"
	CityOther      = "Other"
)

// Property type values
const (
	PropertyApartment = "Apartment"
	PropertyVilla     = "Villa"
	PropertyPlot      = "Plot"
	PropertyOffice    = "Office"
	PropertyRetail    = "Retail"
)

// BHK (bedroom count) values
const (
	BHKStudio = "Studio"
	BHKOne    = "1"
	BHKTwo    = "2"
	BHKThree  = "3"
	BHKFour   = "4"
)

// Purpose values
const (
	PurposeBuy  = "Buy"
	PurposeRent = "Rent"
)

// Timeline values
const (
	TimelineZeroToThree = "0-3m"
	TimelineThreeToSix  = "3-6m"
	TimelineMoreThanSix = ">6m"
	TimelineExploring   = "Exploring"
)

// Source values
const (
	SourceWebsite  = "Website"
	SourceReferral = "Referral"
	SourceWalkIn   = "Walk-in"
	SourceCall     = "Call"
	SourceOther    = "Other"
)

// Lead status values
const (
	StatusNew         = "New"
	StatusQualified   = "Qualified"
	StatusContacted   = "Contacted"
	StatusVisited     = "Visited"
	StatusNegotiation = "Negotiation"
	StatusConverted   = "Converted"
	StatusDropped     = "Dropped"
)

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var ValidCities = []string{
	CityChandigarh, CityMohali, CityZirakpur, CityPanchkula, CityOther,
}

var ValidPropertyTypes = []string{
	PropertyApartment, PropertyVilla, PropertyPlot, PropertyOffice, PropertyRetail,
}

var ValidBHKs = []string{
	BHKStudio, BHKOne, BHKTwo, BHKThree, BHKFour,
}

var ValidPurposes = []string{
	PurposeBuy, PurposeRent,
}

var ValidTimelines = []string{
	TimelineZeroToThree, TimelineThreeToSix, TimelineMoreThanSix, TimelineExploring,
}

var ValidSources = []string{
	SourceWebsite, SourceReferral, SourceWalkIn, SourceCall, SourceOther,
}

var ValidStatuses = []string{
	StatusNew, StatusQualified, StatusContacted, StatusVisited,
	StatusNegotiation, StatusConverted, StatusDropped,
}

// Helper functions for validation
func IsValidCity(city string) bool {
	return contains(ValidCities, city)
}

func IsValidPropertyType(propertyType string) bool {
	return contains(ValidPropertyTypes, propertyType)
}

func IsValidBHK(bhk string) bool {
	return contains(ValidBHKs, bhk)
}

func IsValidPurpose(purpose string) bool {
	return contains(ValidPurposes, purpose)
}

func IsValidTimeline(timeline string) bool {
	return contains(ValidTimelines, timeline)
}

func IsValidSource(source string) bool {
	return contains(ValidSources, source)
}

func IsValidStatus(status string) bool {
	return contains(ValidStatuses, status)
}

// BHKRequired reports whether the bedroom-count category is mandatory
// for the given property type.
func BHKRequired(propertyType string) bool {
	return propertyType == PropertyApartment || propertyType == PropertyVilla
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
