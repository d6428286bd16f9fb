package entities

import "time"

type Author struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:256" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Publisher struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:256" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:100" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Book is the inventory record of a title. Stock is the number of copies the
// library owns; Available is the number not currently on loan.
// 0 <= Available <= Stock holds after every completed operation.
type Book struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Title         string     `gorm:"index;size:512" json:"title"`
	ISBN          string     `gorm:"uniqueIndex;size:20" json:"isbn"`
	PublishedDate time.Time  `gorm:"index" json:"published_date"`
	Stock         int        `gorm:"not null;default:0" json:"stock"`
	Available     int        `gorm:"not null;default:0" json:"available"`
	AuthorID      uint       `gorm:"index" json:"author_id"`
	Author        Author     `gorm:"foreignKey:AuthorID" json:"author"`
	PublisherID   uint       `gorm:"index" json:"publisher_id"`
	Publisher     Publisher  `gorm:"foreignKey:PublisherID" json:"publisher"`
	Categories    []Category `gorm:"many2many:book_categories;" json:"categories"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// BookCategory is the join row between a book and a category. It has its own
// lifecycle: CreatedAt records when the link was made and is left untouched
// when a reconciliation keeps the link.
type BookCategory struct {
	BookID     uint      `gorm:"primaryKey" json:"book_id"`
	CategoryID uint      `gorm:"primaryKey;index" json:"category_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Author) TableName() string {
	return "authors"
}

func (Publisher) TableName() string {
	return "publishers"
}

func (Category) TableName() string {
	return "categories"
}

func (Book) TableName() string {
	return "books"
}

func (BookCategory) TableName() string {
	return "book_categories"
}
