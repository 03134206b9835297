package timezone

// northAmericaAreaCodes covers the NANP area codes seen most often in lead
// lists; unknown codes fall back to Eastern time.
var northAmericaAreaCodes = map[string]string{
	// Eastern
	"201": "America/New_York", "202": "America/New_York", "203": "America/New_York",
	"212": "America/New_York", "215": "America/New_York", "216": "America/New_York",
	"305": "America/New_York", "404": "America/New_York", "407": "America/New_York",
	"412": "America/New_York", "416": "America/Toronto", "617": "America/New_York",
	"646": "America/New_York", "703": "America/New_York", "718": "America/New_York",
	"786": "America/New_York", "813": "America/New_York", "917": "America/New_York",
	"313": "America/Detroit", "514": "America/Toronto", "613": "America/Toronto",
	"647": "America/Toronto", "704": "America/New_York", "919": "America/New_York",

	// Central
	"210": "America/Chicago", "214": "America/Chicago", "312": "America/Chicago",
	"314": "America/Chicago", "469": "America/Chicago", "504": "America/Chicago",
	"512": "America/Chicago", "612": "America/Chicago", "615": "America/Chicago",
	"713": "America/Chicago", "773": "America/Chicago", "816": "America/Chicago",
	"832": "America/Chicago", "972": "America/Chicago", "204": "America/Winnipeg",

	// Mountain
	"303": "America/Denver", "385": "America/Denver", "505": "America/Denver",
	"720": "America/Denver", "801": "America/Denver", "403": "America/Edmonton",
	"780": "America/Edmonton", "480": "America/Phoenix", "520": "America/Phoenix",
	"602": "America/Phoenix", "623": "America/Phoenix",

	// Pacific
	"206": "America/Los_Angeles", "213": "America/Los_Angeles", "310": "America/Los_Angeles",
	"408": "America/Los_Angeles", "415": "America/Los_Angeles", "503": "America/Los_Angeles",
	"510": "America/Los_Angeles", "619": "America/Los_Angeles", "650": "America/Los_Angeles",
	"702": "America/Los_Angeles", "714": "America/Los_Angeles", "818": "America/Los_Angeles",
	"858": "America/Los_Angeles", "949": "America/Los_Angeles", "604": "America/Vancouver",
	"778": "America/Vancouver",

	// Non-contiguous
	"907": "America/Anchorage",
	"808": "Pacific/Honolulu",
}

// regionZones maps single-zone (or dominant-zone) regions to an IANA zone.
var regionZones = map[string]string{
	"GB": "Europe/London",
	"IE": "Europe/Dublin",
	"DE": "Europe/Berlin",
	"FR": "Europe/Paris",
	"NL": "Europe/Amsterdam",
	"ES": "Europe/Madrid",
	"IT": "Europe/Rome",
	"CH": "Europe/Zurich",
	"SE": "Europe/Stockholm",
	"AE": "Asia/Dubai",
	"SA": "Asia/Riyadh",
	"QA": "Asia/Qatar",
	"SG": "Asia/Singapore",
	"MY": "Asia/Kuala_Lumpur",
	"HK": "Asia/Hong_Kong",
	"JP": "Asia/Tokyo",
	"PK": "Asia/Karachi",
	"BD": "Asia/Dhaka",
	"LK": "Asia/Colombo",
	"NP": "Asia/Kathmandu",
	"AU": "Australia/Sydney",
	"NZ": "Pacific/Auckland",
	"ZA": "Africa/Johannesburg",
	"NG": "Africa/Lagos",
	"KE": "Africa/Nairobi",
}
