package badger

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so prefixed keys organize the identity data
// into logical namespaces. This prevents collisions between record types,
// enables efficient range scans and keeps the database self-documenting.
//
// Key Namespace Prefixes:
//
// Data Type            Prefix  Key Format            Value Type
// ======================================================================
// User Data            "u:"    u:<userID>            User (JSON)
// Username Index       "un:"   un:<username>         userID (bytes)
// Folder Grants        "g:"    g:<userID>:<grantID>  Grant (JSON)
// SFTP Credentials     "sc:"   sc:<userID>           SFTPCredentials (JSON)
//
// The username index gives O(1) login lookups and doubles as the uniqueness
// check: creating a user writes both u: and un: in one transaction, and the
// un: key existing first means the name is taken.
//
// Grants are denormalized one entry per grant so a user's full set is a
// single range scan over "g:<userID>:", and deleting a user can drop the
// same range in the cascade.

const (
	// prefixUser is the key prefix for user records
	prefixUser = "u:"

	// prefixUsername is the key prefix for the username uniqueness index
	prefixUsername = "un:"

	// prefixGrant is the key prefix for folder grants
	prefixGrant = "g:"

	// prefixSFTPCreds is the key prefix for SFTP credential records
	prefixSFTPCreds = "sc:"
)

// keyUser generates a key for a user record.
func keyUser(id string) []byte {
	return []byte(prefixUser + id)
}

// keyUsername generates a key for the username index.
func keyUsername(username string) []byte {
	return []byte(prefixUsername + username)
}

// keyGrant generates a key for one grant of a user.
func keyGrant(userID, grantID string) []byte {
	return []byte(prefixGrant + userID + ":" + grantID)
}

// keyGrantScan generates the range-scan prefix covering all grants of a
// user.
func keyGrantScan(userID string) []byte {
	return []byte(prefixGrant + userID + ":")
}

// keySFTPCreds generates a key for a user's SFTP credentials.
func keySFTPCreds(userID string) []byte {
	return []byte(prefixSFTPCreds + userID)
}
