package templates_test

import (
	"fmt"
	"strings"

	"github.com/openfroyo/hostkit/pkg/config"
	"github.com/openfroyo/hostkit/pkg/templates"
)

func ExampleCatalog_Render() {
	cfg := config.Default()

	f, err := templates.NewCatalog().Render(templates.NameNginxSite, cfg)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Printf("%s %s %o\n", f.Path, f.Owner, f.Mode)
	for _, line := range strings.Split(f.Content, "\n") {
		if strings.Contains(line, "proxy_pass") {
			fmt.Println(strings.TrimSpace(line))
			break
		}
	}
	// Output:
	// /etc/nginx/sites-available/nodeapp root 644
	// proxy_pass http://localhost:3000;
}
