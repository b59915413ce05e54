package httpapi

import (
	"html/template"
	"net/http"

	"condoplex.org/internal/auth"
)

// Page shells only: the real dashboards are rendered by the frontend; these
// placeholders give the guards routes to protect.
var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}} · Condoplex</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .User}}<p>Signed in as {{.User.FirstName}} {{.User.LastName}} ({{.User.Email}})</p>{{end}}
</body>
</html>
`))

var pageTitles = map[string]string{
	"home":        "Home",
	"login":       "Sign in",
	"charges":     "Charges",
	"occurrences": "Occurrences",
	"reports":     "Reports",
	"settings":    "Settings",
}

type pageData struct {
	Title string
	User  *auth.User
}

func (a *API) handlePage(name string) http.HandlerFunc {
	title, ok := pageTitles[name]
	if !ok {
		title = name
	}
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := auth.UserFromContext(r.Context())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = pageTemplate.Execute(w, pageData{Title: title, User: user})
	}
}
