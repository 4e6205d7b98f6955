package session

import (
	"fmt"
	"regexp"
	"strings"
)

// The mock understands the selector shapes the scraper issues:
//
//	tag[attr="v"][attr*="v"]
//	//tag[contains(@attr,'v') and @attr='v']
//	//tag[@attr='v' or @attr='w']

type nodeMatcher func(n *MockNode) bool

var (
	cssRe       = regexp.MustCompile(`^([A-Za-z*]*)((?:\[[^\]]+\])*)$`)
	cssAttrRe   = regexp.MustCompile(`\[\s*([\w-]+)\s*(?:(\*=|\^=|=)\s*(?:"([^"]*)"|'([^']*)'|([^\]\s"']*)))?\s*\]`)
	xpathRe     = regexp.MustCompile(`^//([\w*]+)(?:\[(.*)\])?$`)
	containsRe  = regexp.MustCompile(`^contains\(\s*@([\w-]+)\s*,\s*(?:'([^']*)'|"([^"]*)")\s*\)$`)
	attrEqualRe = regexp.MustCompile(`^@([\w-]+)\s*=\s*(?:'([^']*)'|"([^"]*)")$`)
)

func compileSelector(sel Selector) (nodeMatcher, error) {
	switch sel.Kind {
	case CSS:
		return compileCSS(strings.TrimSpace(sel.Expr))
	case XPath:
		return compileXPath(strings.TrimSpace(sel.Expr))
	}
	return nil, fmt.Errorf("mock: unknown selector kind %d", sel.Kind)
}

func tagMatcher(tag string) func(n *MockNode) bool {
	return func(n *MockNode) bool {
		return tag == "" || tag == "*" || strings.EqualFold(n.Tag, tag)
	}
}

func compileCSS(expr string) (nodeMatcher, error) {
	m := cssRe.FindStringSubmatch(expr)
	if m == nil || expr == "" {
		return nil, fmt.Errorf("mock: unsupported css selector %q", expr)
	}

	matchTag := tagMatcher(m[1])
	var preds []nodeMatcher
	for _, a := range cssAttrRe.FindAllStringSubmatch(m[2], -1) {
		name, op, value := a[1], a[2], a[3]+a[4]+a[5]
		preds = append(preds, attrPredicate(name, op, value))
	}

	return func(n *MockNode) bool {
		if !matchTag(n) {
			return false
		}
		for _, p := range preds {
			if !p(n) {
				return false
			}
		}
		return true
	}, nil
}

func attrPredicate(name, op, value string) nodeMatcher {
	return func(n *MockNode) bool {
		v, ok := n.Attrs[name]
		if !ok {
			return false
		}
		switch op {
		case "":
			return true
		case "=":
			return v == value
		case "*=":
			return strings.Contains(v, value)
		case "^=":
			return strings.HasPrefix(v, value)
		}
		return false
	}
}

func compileXPath(expr string) (nodeMatcher, error) {
	m := xpathRe.FindStringSubmatch(expr)
	if m == nil {
		return nil, fmt.Errorf("mock: unsupported xpath %q", expr)
	}
	matchTag := tagMatcher(m[1])
	if m[2] == "" {
		return matchTag, nil
	}

	body := m[2]
	hasAnd := strings.Contains(body, " and ")
	hasOr := strings.Contains(body, " or ")
	if hasAnd && hasOr {
		return nil, fmt.Errorf("mock: mixed and/or in %q", expr)
	}
	sep := " and "
	if hasOr {
		sep = " or "
	}

	var preds []nodeMatcher
	for _, term := range strings.Split(body, sep) {
		term = strings.TrimSpace(term)
		if c := containsRe.FindStringSubmatch(term); c != nil {
			preds = append(preds, attrPredicate(c[1], "*=", c[2]+c[3]))
			continue
		}
		if e := attrEqualRe.FindStringSubmatch(term); e != nil {
			preds = append(preds, attrPredicate(e[1], "=", e[2]+e[3]))
			continue
		}
		return nil, fmt.Errorf("mock: unsupported xpath predicate %q", term)
	}

	return func(n *MockNode) bool {
		if !matchTag(n) {
			return false
		}
		for _, p := range preds {
			if p(n) == hasOr {
				return hasOr
			}
		}
		return !hasOr
	}, nil
}
