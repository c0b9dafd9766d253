// main.go
//
// Container health probe for the qatrack service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of qatrack.
// qatrack is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// qatrack is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with qatrack.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/localnerve/qatrack/internal/config"
	"github.com/localnerve/qatrack/internal/database"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/localnerve/qatrack/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	// Stored SMTP settings take precedence over the environment
	email, err := services.LoadEmailSettings(db, services.EmailSettingsFromConfig(cfg))
	if err != nil {
		log.Printf("Failed to load email settings: %v", err)
	}

	result := services.HealthCheck(cfg, db, email)

	// The HTTP listener is part of the probe when a port is configured
	if cfg.Port != "" {
		if err := utils.PingService("http://localhost:"+cfg.Port, 2*time.Second); err != nil {
			result.Status = "unhealthy"
			result.Details["http_error"] = err.Error()
		}
	}

	// Output result as JSON
	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal health check result: %v", err)
	}

	fmt.Println(string(output))

	// A degraded mail transport does not fail the probe
	if result.Status == "unhealthy" {
		os.Exit(1)
	}
}
