package gateway

import (
	"fmt"
	"html/template"
	"io"
)

var embeddedPage = template.Must(template.New("embedded").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>Opening payment</title>
<script src="{{.SDKURL}}"></script>
</head>
<body>
{{if .Sandbox}}<p class="sandbox-banner">Sandbox mode: no real payment will be taken.</p>{{end}}
<p>Opening secure checkout for order {{.OrderID}}…</p>
<script>
Cashfree({mode: {{.Mode}}}).checkout({paymentSessionId: {{.SessionToken}}, redirectTarget: "_self"});
</script>
</body>
</html>
`))

var redirectPage = template.Must(template.New("redirect").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>Redirecting to payment</title>
</head>
<body>
{{if .Sandbox}}<p class="sandbox-banner">Sandbox mode: no real payment will be taken.</p>{{end}}
<form id="gateway-form" method="{{.Method}}" action="{{.Action}}">
{{range .Fields}}<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{end}}<noscript><button type="submit">Continue to payment</button></noscript>
</form>
<script>document.getElementById("gateway-form").submit();</script>
</body>
</html>
`))

// Render writes the handoff page for the checkout.
func (c *Checkout) Render(w io.Writer) error {
	switch c.Kind {
	case KindEmbedded:
		return embeddedPage.Execute(w, c)
	case KindRedirect:
		return redirectPage.Execute(w, c)
	}
	return fmt.Errorf("render: unknown checkout kind %q", c.Kind)
}
