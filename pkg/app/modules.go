package app

// First-party modules, registered from their init functions.
import (
	_ "github.com/flemzord/substackulous/internal/cron"
	_ "github.com/flemzord/substackulous/internal/gateway"
	_ "github.com/flemzord/substackulous/modules/auth/supabase"
	_ "github.com/flemzord/substackulous/modules/billing/stripe"
	_ "github.com/flemzord/substackulous/modules/credits/sqlite"
	_ "github.com/flemzord/substackulous/modules/provider/groq"
)
