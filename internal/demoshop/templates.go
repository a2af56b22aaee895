// internal/demoshop/templates.go
package demoshop

import (
	"fmt"
	"html/template"
)

// pageData is the template payload for every page. Unused fields stay zero.
type pageData struct {
	Title        string
	CartDelayMS  int64
	ModalDelayMS int64
	Products     []Product
	Product      Product
	Rows         []cartRow
	Total        int
	Name         string
	OrderID      string
}

// cartRow is one line of the cart table.
type cartRow struct {
	Product  Product
	Qty      int
	Subtotal int
}

// newTemplates parses the layout once and clones it per page.
func newTemplates() (map[string]*template.Template, error) {
	base, err := template.New("layout").Funcs(template.FuncMap{
		"price": func(cents int) string {
			return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
		},
		"even": func(i int) bool { return i%2 == 0 },
	}).Parse(layoutHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout template: %w", err)
	}

	pages := map[string]string{
		"home":         homeHTML,
		"listing":      listingHTML,
		"product":      productHTML,
		"cart":         cartHTML,
		"checkout":     checkoutHTML,
		"confirmation": confirmationHTML,
	}

	out := make(map[string]*template.Template, len(pages))
	for name, src := range pages {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone layout for %q: %w", name, err)
		}
		t, err := clone.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %q template: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

// The cart badge is populated by script only, after a configurable delay, so
// a freshly loaded page briefly shows no count at all. The newsletter modal
// appears after its own delay on the listing page. Both behaviors are what
// the suite's polling and dismissal helpers exist to handle; do not "fix"
// them.
const layoutHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} · Trolley Outfitters</title>
<style>
body { font-family: Georgia, serif; margin: 0; color: #222; }
header { display: flex; justify-content: space-between; padding: 1rem 2rem; border-bottom: 1px solid #ddd; }
header a { color: #222; text-decoration: none; margin-left: 1rem; }
main { max-width: 60rem; margin: 2rem auto; padding: 0 1rem; }
.product-grid { display: grid; grid-template-columns: repeat(3, 1fr); gap: 1rem; }
.product-card { border: 1px solid #ddd; padding: 1rem; }
#cart-count { background: #222; color: #fff; border-radius: 1em; padding: 0 .5em; }
#cart-count:empty { visibility: hidden; }
table { border-collapse: collapse; width: 100%; }
td, th { border-bottom: 1px solid #eee; padding: .5rem; text-align: left; }
.modal { position: fixed; inset: 0; background: rgba(0,0,0,.45); display: flex; align-items: center; justify-content: center; }
.modal[hidden] { display: none; }
.modal-body { background: #fff; padding: 2rem; max-width: 24rem; }
</style>
</head>
<body>
<header>
  <a id="nav-home" href="/">Trolley Outfitters</a>
  <nav>
    <a id="nav-products" href="/products">Shop</a>
    <a id="nav-cart" href="/cart">Cart <span id="cart-count" data-state="pending"></span></a>
  </nav>
</header>
<main>
{{template "content" .}}
</main>
<script>
(function () {
  function refreshBadge() {
    fetch('/api/cart/count')
      .then(function (res) {
        if (!res.ok) { throw new Error('count unavailable'); }
        return res.json();
      })
      .then(function (data) {
        var badge = document.getElementById('cart-count');
        badge.textContent = data.count;
        badge.dataset.state = 'ready';
      })
      .catch(function () { setTimeout(refreshBadge, 250); });
  }
  setTimeout(refreshBadge, {{.CartDelayMS}});
})();
</script>
{{block "scripts" .}}{{end}}
</body>
</html>`

const homeHTML = `{{define "content"}}
<section id="hero">
  <h1 id="home-title">Goods for unhurried homes</h1>
  <p>Small-batch furniture and objects, shipped at their own pace.</p>
  <a id="shop-now" href="/products">Shop the collection</a>
</section>
{{end}}`

// Half the cards render the regular add-to-cart button, the other half a
// compact quick-add control, so "add this product" has no single selector.
const listingHTML = `{{define "content"}}
<h1 id="listing-title">All products</h1>
<section class="product-grid">
{{range $i, $p := .Products}}
  <article class="product-card" data-product-id="{{$p.ID}}">
    <h3 class="product-name"><a class="product-link" href="/products/{{$p.ID}}">{{$p.Name}}</a></h3>
    <p class="product-price">{{price $p.PriceCents}}</p>
    <form method="post" action="/cart/add">
      <input type="hidden" name="product_id" value="{{$p.ID}}">
      <input type="hidden" name="qty" value="1">
      {{if even $i}}<button class="add-to-cart" type="submit">Add to cart</button>{{else}}<button class="quick-add" type="submit" title="Quick add">+</button>{{end}}
    </form>
  </article>
{{end}}
</section>
<div id="newsletter-modal" class="modal" hidden>
  <div class="modal-body">
    <h2>Join our newsletter</h2>
    <p>Occasional letters about slow furniture.</p>
    <button class="modal-close" type="button">No thanks</button>
  </div>
</div>
{{end}}
{{define "scripts"}}
<script>
(function () {
  if (sessionStorage.getItem('newsletter-dismissed')) { return; }
  var modal = document.getElementById('newsletter-modal');
  setTimeout(function () { modal.hidden = false; }, {{.ModalDelayMS}});
  modal.querySelector('.modal-close').addEventListener('click', function () {
    modal.hidden = true;
    sessionStorage.setItem('newsletter-dismissed', '1');
  });
})();
</script>
{{end}}`

const productHTML = `{{define "content"}}
<article id="product-detail" data-product-id="{{.Product.ID}}">
  <h1 id="product-name">{{.Product.Name}}</h1>
  <p id="product-price">{{price .Product.PriceCents}}</p>
  <p id="product-blurb">{{.Product.Blurb}}</p>
  <form method="post" action="/cart/add">
    <input type="hidden" name="product_id" value="{{.Product.ID}}">
    <label>Qty <input id="qty-input" type="number" name="qty" value="1" min="1"></label>
    <button id="add-to-cart" type="submit">Add to cart</button>
  </form>
</article>
{{end}}`

// The checkout link opens a new tab; the suite's tab recovery exists for
// exactly this.
const cartHTML = `{{define "content"}}
<h1 id="cart-title">Your cart</h1>
{{if .Rows}}
<table id="cart-table">
  <thead><tr><th>Item</th><th>Qty</th><th>Price</th><th></th></tr></thead>
  <tbody>
{{range .Rows}}
  <tr class="cart-row" data-product-id="{{.Product.ID}}">
    <td class="item-name">{{.Product.Name}}</td>
    <td class="item-qty">{{.Qty}}</td>
    <td class="item-price">{{price .Subtotal}}</td>
    <td><form method="post" action="/cart/remove"><input type="hidden" name="product_id" value="{{.Product.ID}}"><button class="remove-item" type="submit">Remove</button></form></td>
  </tr>
{{end}}
  </tbody>
</table>
<p>Total: <strong id="cart-total">{{price .Total}}</strong></p>
<a id="checkout-link" href="/checkout" target="_blank">Proceed to checkout</a>
{{else}}
<p id="cart-empty">Your cart is empty.</p>
<a id="continue-shopping" href="/products">Browse products</a>
{{end}}
{{end}}`

const checkoutHTML = `{{define "content"}}
<h1 id="checkout-title">Checkout</h1>
<form id="checkout-form" method="post" action="/checkout/confirm">
  <p><label>Name <input id="ship-name" name="name" required></label></p>
  <p><label>Email <input id="ship-email" name="email" type="email" required></label></p>
  <p><label>Address <textarea id="ship-address" name="address" required></textarea></label></p>
  <p><label>Card number <input id="card-number" name="card" inputmode="numeric" required></label></p>
  <button id="place-order" type="submit">Place order</button>
</form>
{{end}}`

const confirmationHTML = `{{define "content"}}
<section id="order-confirmation">
  <h1 id="confirmation-title">Thanks, {{.Name}}!</h1>
  <p>Your order <strong id="order-id">{{.OrderID}}</strong> is on its way.</p>
  <p id="order-total">Charged: {{price .Total}}</p>
</section>
{{end}}`
