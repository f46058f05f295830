package types

// Version is the billsync release version.
const Version = "0.3.0"

// ContractVersion is stamped on history records and published
// notifications so consumers can tell record layouts apart.
const ContractVersion = Version
