package types

// Version is the canonical tool version.
// Reported by the version command and attached to submission notifications.
const Version = "1.2.0"

// ContractVersion is the notification payload contract version.
// Kept in lockstep with Version.
const ContractVersion = Version

// CurrentReportVersion is the canonical report format version.
// Reports declaring an older version are upgraded to this shape before
// validation; newer versions are rejected.
const CurrentReportVersion = 2
