package policy

// Builtin grants cover the dashboard feature areas. Administrators manage
// everything; residents read their own slices and file occurrences.
var BuiltinGrants = []Grant{
	{Role: "administrator", Action: "manage", Subject: "charges"},
	{Role: "administrator", Action: "manage", Subject: "occurrences"},
	{Role: "administrator", Action: "manage", Subject: "notifications"},
	{Role: "administrator", Action: "manage", Subject: "reports"},
	{Role: "administrator", Action: "manage", Subject: "access-control"},
	{Role: "administrator", Action: "manage", Subject: "users"},

	{Role: "resident", Action: "read", Subject: "charges"},
	{Role: "resident", Action: "read", Subject: "notifications"},
	{Role: "resident", Action: "read", Subject: "occurrences"},
	{Role: "resident", Action: "create", Subject: "occurrences"},
	{Role: "resident", Action: "read", Subject: "reports"},
	{Role: "resident", Action: "manage", Subject: "settings"},
}
