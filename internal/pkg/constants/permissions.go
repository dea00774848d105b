package constants

const (
	ResolveRequests   = "resolve_requests"
	ReserveUnits      = "reserve_units"
	ManageEvents      = "manage_events"
	LoadEsims         = "load_esims"
	ImportUnits       = "import_units"
	RunReconciliation = "run_reconciliation"
	PurgeData         = "purge_data"
)

// PermissionRoles maps each permission to the roles allowed to use it.
var PermissionRoles = map[string][]string{
	ResolveRequests:   {Supervisor, Admin},
	ReserveUnits:      {Supervisor, Admin},
	ManageEvents:      {Supervisor, Admin},
	LoadEsims:         {Supervisor, Admin},
	ImportUnits:       {Supervisor, Admin},
	RunReconciliation: {Supervisor, Admin},
	PurgeData:         {Admin},
}

// AllowedRole reports whether role may use permission.
func AllowedRole(permission, role string) bool {
	for _, r := range PermissionRoles[permission] {
		if r == role {
			return true
		}
	}
	return false
}
