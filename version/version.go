package version

// Version is the current release of the sheguard binary.
const Version = "0.1.0"
