package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrPairBlocked 代表雙方之間存在封鎖，無法建立私訊串或傳送訊息
	ErrPairBlocked = errors.New("pair is blocked")
	// ErrParticipantExists 代表寄件者已經有此物品的私訊串
	ErrParticipantExists = errors.New("participant already exists")
	// ErrParticipantMissing 代表私訊串缺少對應的參與者
	ErrParticipantMissing = errors.New("participant not found in thread")
)

// Thread 代表一個物品底下的私訊串
// 物品被刪除時私訊串保留（item_id 設為 NULL）
type Thread struct {
	gorm.Model

	ItemID *uint

	Item      *Item `gorm:"foreignKey:ItemID"`
	Responses []Response
}

// Response 代表私訊串中的一則訊息
// receiver 為 NULL 時代表「僅寄件者可見」的訊息：封鎖發生後，
// 被封鎖方在既有私訊串中送出的訊息不會投遞給封鎖方
type Response struct {
	gorm.Model

	ThreadID   uint `gorm:"not null;<-:create"`
	SenderID   *uint
	ReceiverID *uint
	Content    string `gorm:"type:text;not null"`

	Thread   Thread `gorm:"foreignKey:ThreadID"`
	Sender   *User  `gorm:"foreignKey:SenderID"`
	Receiver *User  `gorm:"foreignKey:ReceiverID"`
}

// Participant 代表單一使用者在私訊串中的狀態
// 讀取與刪除狀態是每位參與者獨立的；visible_from 是可見性的浮水印，
// 參與者刪除私訊串後只看得到這個時間之後的訊息（對方不受影響）
type Participant struct {
	gorm.Model

	ThreadID       uint `gorm:"not null;<-:create"`
	UserID         uint `gorm:"not null;<-:create"`
	OpponentID     *uint
	LastResponseID *uint
	IsRead         bool      `gorm:"not null;default:false"`
	IsDeleted      bool      `gorm:"not null;default:false"`
	VisibleFrom    time.Time `gorm:"not null"`

	Thread       Thread    `gorm:"foreignKey:ThreadID"`
	User         User      `gorm:"foreignKey:UserID"`
	Opponent     *User     `gorm:"foreignKey:OpponentID"`
	LastResponse *Response `gorm:"foreignKey:LastResponseID"`
}

// CreateThread 建立新的私訊串與第一則訊息
// 雙方之間存在任一方向的封鎖、或寄件者已有此物品的私訊串時回傳驗證錯誤，
// 不會留下任何資料
func CreateThread(db *gorm.DB, itemID, senderID, receiverID uint, content string) (*Participant, error) {
	const op = "CreateThread"

	blocked, err := IsBlockedPair(db, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to check block state, err=%w", op, err)
	}
	if blocked {
		return nil, ErrPairBlocked
	}

	var count int64
	result := db.Model(&Participant{}).
		Joins("JOIN threads ON threads.id = participants.thread_id").
		Where("threads.item_id = ? AND participants.user_id = ?", itemID, senderID).
		Count(&count)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to check existing participant, err=%w", op, result.Error)
	}
	if count > 0 {
		return nil, ErrParticipantExists
	}

	var sender *Participant
	err = db.Transaction(func(tx *gorm.DB) error {
		thread := Thread{ItemID: &itemID}
		if result := tx.Create(&thread); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create thread, err=%w", op, result.Error)
		}
		response := Response{
			ThreadID:   thread.ID,
			SenderID:   &senderID,
			ReceiverID: &receiverID,
			Content:    content,
		}
		if result := tx.Create(&response); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create response, err=%w", op, result.Error)
		}
		// 浮水印初始化為第一則訊息的時間，讓未刪除過的參與者看得到整串訊息
		sender = &Participant{
			ThreadID:       thread.ID,
			UserID:         senderID,
			OpponentID:     &receiverID,
			LastResponseID: &response.ID,
			IsRead:         true,
			VisibleFrom:    response.CreatedAt,
		}
		receiver := Participant{
			ThreadID:       thread.ID,
			UserID:         receiverID,
			OpponentID:     &senderID,
			LastResponseID: &response.ID,
			IsRead:         false,
			VisibleFrom:    response.CreatedAt,
		}
		if result := tx.Create(sender); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create sender participant, err=%w", op, result.Error)
		}
		if result := tx.Create(&receiver); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create receiver participant, err=%w", op, result.Error)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}

// AddResponse 在既有的私訊串中新增訊息並更新參與者狀態
// 寄件者封鎖了收件者時回傳驗證錯誤；寄件者被收件者封鎖時，
// 訊息仍會建立但 receiver 設為 NULL，只更新寄件者這一側的狀態
func AddResponse(db *gorm.DB, threadID, senderID, receiverID uint, content string) (*Response, *Participant, error) {
	const op = "AddResponse"

	blocked, err := HasBlocked(db, senderID, receiverID)
	if err != nil {
		return nil, nil, fmt.Errorf("[%s] Fail to check block state, err=%w", op, err)
	}
	if blocked {
		return nil, nil, ErrPairBlocked
	}
	isBlocked, err := HasBlocked(db, receiverID, senderID)
	if err != nil {
		return nil, nil, fmt.Errorf("[%s] Fail to check block state, err=%w", op, err)
	}

	var response Response
	var sender *Participant
	err = db.Transaction(func(tx *gorm.DB) error {
		response = Response{
			ThreadID: threadID,
			SenderID: &senderID,
			Content:  content,
		}
		if !isBlocked {
			response.ReceiverID = &receiverID
		}
		if result := tx.Create(&response); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create response, err=%w", op, result.Error)
		}

		var participants []Participant
		if result := tx.Where("thread_id = ?", threadID).Find(&participants); result.Error != nil {
			return fmt.Errorf("[%s] Fail to load participants, err=%w", op, result.Error)
		}
		for i := range participants {
			participant := &participants[i]
			if participant.UserID != senderID && isBlocked {
				continue
			}
			if err := applyResponse(tx, participant, &response, senderID); err != nil {
				return err
			}
			if participant.UserID == senderID {
				sender = participant
			}
		}
		if sender == nil {
			return ErrParticipantMissing
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &response, sender, nil
}

// applyResponse 依照新訊息更新單一參與者的狀態
// 收到訊息會讓該側的私訊串「復活」（is_deleted 設回 false）並轉為未讀；
// 寄件者那一側則保持已讀
func applyResponse(tx *gorm.DB, participant *Participant, response *Response, actorID uint) error {
	const op = "applyResponse"
	participant.LastResponseID = &response.ID
	participant.IsDeleted = false
	participant.IsRead = participant.UserID == actorID
	participant.UpdatedAt = response.CreatedAt
	result := tx.Model(participant).UpdateColumns(map[string]any{
		"last_response_id": participant.LastResponseID,
		"is_deleted":       participant.IsDeleted,
		"is_read":          participant.IsRead,
		"updated_at":       participant.UpdatedAt,
	})
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to update participant, err=%w", op, result.Error)
	}
	return nil
}

// MarkThreadDeleted 將參與者這一側的私訊串標記為刪除
// 浮水印前移到現在，之後只看得到這個時間之後的訊息
func MarkThreadDeleted(db *gorm.DB, participant *Participant) error {
	const op = "MarkThreadDeleted"
	now := time.Now()
	participant.IsDeleted = true
	participant.VisibleFrom = now
	result := db.Model(participant).UpdateColumns(map[string]any{
		"is_deleted":   true,
		"visible_from": now,
	})
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to mark participant deleted, err=%w", op, result.Error)
	}
	return nil
}

// MarkThreadRead 將參與者這一側的私訊串標記為已讀（已刪除時不動作）
func MarkThreadRead(db *gorm.DB, participant *Participant) error {
	const op = "MarkThreadRead"
	if participant.IsDeleted || participant.IsRead {
		return nil
	}
	participant.IsRead = true
	if result := db.Model(participant).UpdateColumn("is_read", true); result.Error != nil {
		return fmt.Errorf("[%s] Fail to mark participant read, err=%w", op, result.Error)
	}
	return nil
}

// VisibleResponsesScope 篩選出參與者可見的訊息：
// 浮水印之後、且不是「僅寄件者可見」的他人訊息，由新到舊排序
func VisibleResponsesScope(participant *Participant) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Where("responses.thread_id = ?", participant.ThreadID).
			Where("responses.created_at >= ?", participant.VisibleFrom).
			Where("responses.sender_id = ? OR responses.receiver_id IS NOT NULL", participant.UserID).
			Order("responses.created_at DESC")
	}
}
