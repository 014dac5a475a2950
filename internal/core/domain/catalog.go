package domain

type Category struct {
	ID     string `json:"id"`
	Name   string `json:"name" validate:"required"`
	NameAr string `json:"nameAr,omitempty"`
}

type Brand struct {
	ID      string `json:"id"`
	Name    string `json:"name" validate:"required"`
	LogoURL string `json:"logoUrl,omitempty"`
}
