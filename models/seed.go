package models

// SeedDefaultVectors returns builtin attack vectors covering common API abuse
// shapes. Seeded once when the table is empty; builtins can be toggled but
// never deleted through the admin API.
func SeedDefaultVectors() []AttackVector {
	return []AttackVector{
		{
			PathPattern:  "/api/auth/login",
			Method:       "POST",
			Headers:      HeaderSet([]string{"accept", "content-type", "user-agent"}),
			BodyPattern:  JSONKeysPattern([]string{"username", "password"}),
			QueryPattern: QueryKeysPattern(nil),
			Severity:     SeverityHigh,
			Description:  "Credential stuffing against the login endpoint",
			IsBuiltin:    true,
			Active:       true,
		},
		{
			PathPattern:  "/api/users/{ID}",
			Method:       "GET",
			Headers:      HeaderSet([]string{"accept", "user-agent"}),
			BodyPattern:  SizeBucket(0),
			QueryPattern: QueryKeysPattern(nil),
			Severity:     SeverityMedium,
			Description:  "Sequential user enumeration by normalized ID",
			IsBuiltin:    true,
			Active:       true,
		},
		{
			PathPattern:  "/api/admin/users",
			Method:       "POST",
			Headers:      HeaderSet([]string{"accept", "content-type", "user-agent"}),
			BodyPattern:  JSONKeysPattern([]string{"role", "username"}),
			QueryPattern: QueryKeysPattern(nil),
			Severity:     SeverityCritical,
			Description:  "Privilege escalation probe against admin user creation",
			IsBuiltin:    true,
			Active:       true,
		},
		{
			PathPattern:  "/graphql",
			Method:       "POST",
			Headers:      HeaderSet([]string{"accept", "content-type", "user-agent"}),
			BodyPattern:  JSONKeysPattern([]string{"query"}),
			QueryPattern: QueryKeysPattern(nil),
			Severity:     SeverityMedium,
			Description:  "GraphQL introspection sweep",
			IsBuiltin:    true,
			Active:       true,
		},
		{
			PathPattern:  "/api/export",
			Method:       "GET",
			Headers:      HeaderSet([]string{"accept", "user-agent"}),
			BodyPattern:  SizeBucket(0),
			QueryPattern: QueryKeysPattern([]string{"format", "limit", "offset"}),
			Severity:     SeverityHigh,
			Description:  "Bulk data export scraping",
			IsBuiltin:    true,
			Active:       true,
		},
	}
}
